package service

import (
	"context"
	"time"

	"github.com/pkaminski/adspulse/internal/analytics"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/events"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/metrics"
	"github.com/pkaminski/adspulse/internal/registry"
)

// jobRunner is the registry and telemetry plumbing shared by the fetch and
// import orchestrators.
type jobRunner struct {
	jobs   registry.Registry
	sink   metrics.Sink
	usage  *analytics.Recorder
	bus    events.Publisher
	logger *logger.Logger
	now    func() time.Time
}

func newJobRunner(
	jobs registry.Registry,
	sink metrics.Sink,
	usage *analytics.Recorder,
	bus events.Publisher,
	log *logger.Logger,
	component string,
) jobRunner {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if bus == nil {
		bus = events.NewNopPublisher()
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return jobRunner{
		jobs:   jobs,
		sink:   sink,
		usage:  usage,
		bus:    bus,
		logger: log.WithField(logger.FieldComponent, component),
		now:    time.Now,
	}
}

// log returns the context logger when one is attached, the component logger
// otherwise.
func (r *jobRunner) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return r.logger
}

// update applies a registry update, logging rather than failing the run
// when the registry rejects it.
func (r *jobRunner) update(ctx context.Context, jobID string, u registry.Update) {
	if _, err := r.jobs.Update(ctx, jobID, u); err != nil {
		r.log(ctx).WithError(err).Warn("Failed to update job record")
	}
}

// finish lands the job in a terminal state with an error message attached.
func (r *jobRunner) finish(ctx context.Context, jobID string, status domain.JobStatus, msg string) {
	u := registry.Update{}.WithStatus(status)
	if msg != "" {
		u = u.WithError(msg)
	}
	r.update(ctx, jobID, u)
	r.afterFinish(ctx, jobID, 0)
}

// afterFinish emits the completion side effects: metrics, usage counters
// and the job event. All are best-effort.
func (r *jobRunner) afterFinish(ctx context.Context, jobID string, records int64) {
	job, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		r.log(ctx).WithError(err).Warn("Failed to load job for completion side effects")
		return
	}
	r.sink.JobCompleted(string(job.Kind), string(job.Status))
	r.usage.JobCompleted(ctx, string(job.Kind), job.Metadata["profile_id"], records, r.now())
	r.bus.JobFinished(ctx, events.EventFromJob(job))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
