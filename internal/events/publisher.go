// Package events publishes job-lifecycle notifications to an optional
// message broker. Publishing is best-effort: a broker outage never affects
// the job that triggered the event.
package events

import (
	"context"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

// JobEvent is the JSON payload emitted when a job reaches a terminal state.
type JobEvent struct {
	JobID       string            `json:"job_id"`
	Kind        domain.JobKind    `json:"job_type"`
	Status      domain.JobStatus  `json:"status"`
	Counters    domain.CounterMap `json:"counters,omitempty"`
	CompletedAt time.Time         `json:"completed_at"`
}

// EventFromJob builds the published payload from a job snapshot.
func EventFromJob(job domain.JobRecord) JobEvent {
	e := JobEvent{
		JobID:    job.ID,
		Kind:     job.Kind,
		Status:   job.Status,
		Counters: job.Counters,
	}
	if job.CompletedAt != nil {
		e.CompletedAt = *job.CompletedAt
	}
	return e
}

// Publisher emits job events. Implementations log failures instead of
// returning them to the orchestrators.
type Publisher interface {
	JobFinished(ctx context.Context, event JobEvent)
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// NewNopPublisher returns a publisher that discards events.
func NewNopPublisher() *NopPublisher {
	return &NopPublisher{}
}

func (*NopPublisher) JobFinished(ctx context.Context, event JobEvent) {}

func (*NopPublisher) Close() error { return nil }
