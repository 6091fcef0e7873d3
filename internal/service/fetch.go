package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkaminski/adspulse/internal/ads"
	"github.com/pkaminski/adspulse/internal/analytics"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/events"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/metrics"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/storage"
	"github.com/pkaminski/adspulse/internal/store"
)

// Fetch run phases, recorded in job metadata as the machine advances.
const (
	phaseAuthenticating = "authenticating"
	phaseRequesting     = "requesting"
	phasePolling        = "polling"
	phaseDownloading    = "downloading"
	phasePersisting     = "persisting"
	phaseDone           = "done"
)

const metaPhase = "phase"

// persistBatchSize bounds one store write during the persisting phase.
const persistBatchSize = 500

// FetchConfig tunes one fetch run. Zero values fall back to the provider's
// documented defaults.
type FetchConfig struct {
	MaxRetries         int
	BackoffBase        time.Duration
	PollInterval       time.Duration
	PollTimeout        time.Duration
	ProgressRequested  float64
	ProgressPolled     float64
	ProgressDownloaded float64
	// ArchiveReports stores the raw report payload to object storage after
	// download.
	ArchiveReports bool
}

func (c *FetchConfig) setDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 600 * time.Second
	}
	if c.ProgressRequested <= 0 {
		c.ProgressRequested = 10
	}
	if c.ProgressPolled <= c.ProgressRequested {
		c.ProgressPolled = 60
	}
	if c.ProgressDownloaded <= c.ProgressPolled {
		c.ProgressDownloaded = 80
	}
}

// FetchService drives external report fetches to completion. Each run walks
// an explicit phase machine (authenticate, request, poll, download, persist)
// in its own goroutine, reporting progress into the job registry and writing
// results into the performance store. Many runs may be in flight at once;
// they share one rate-limited API client.
type FetchService struct {
	jobRunner
	perf    store.Store
	client  *ads.Client
	archive storage.ObjectStorage
	cfg     FetchConfig

	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetchService creates a fetch orchestrator.
// Parameters:
//   - jobs: registry receiving progress and terminal states.
//   - perf: store receiving fetched records.
//   - client: shared ads API client.
//   - archive: object storage for raw-report archiving; nil disables it.
//   - sink: metrics sink; nil falls back to a no-op sink.
//   - usage: optional usage recorder; nil disables counters.
//   - bus: job event publisher; nil falls back to a no-op publisher.
//   - cfg: retry/poll/progress tuning.
//   - log: base logger.
// Returns:
//   - *FetchService: orchestrator ready to start jobs.
func NewFetchService(
	jobs registry.Registry,
	perf store.Store,
	client *ads.Client,
	archive storage.ObjectStorage,
	sink metrics.Sink,
	usage *analytics.Recorder,
	bus events.Publisher,
	cfg FetchConfig,
	log *logger.Logger,
) *FetchService {
	cfg.setDefaults()
	return &FetchService{
		jobRunner: newJobRunner(jobs, sink, usage, bus, log, "fetch"),
		perf:      perf,
		client:    client,
		archive:   archive,
		cfg:       cfg,
		sleep:     sleepContext,
	}
}

// StartFetch validates the request, creates a job and launches the run in
// its own goroutine. Validation failures never create a job.
// Parameters:
//   - ctx: request context; used for validation only, the run itself is
//     detached from the caller.
//   - profileID: advertising profile to fetch for.
//   - dates: inclusive report range; the end day must not be in the future.
//   - reportType: provider report type id; empty selects the keyword report.
// Returns:
//   - domain.JobRecord: the pending job snapshot.
//   - error: validation failure.
func (s *FetchService) StartFetch(ctx context.Context, profileID string, dates domain.DateRange, reportType string) (domain.JobRecord, error) {
	if strings.TrimSpace(profileID) == "" {
		return domain.JobRecord{}, domain.Validationf("profile_id is required")
	}
	if err := dates.Validate(); err != nil {
		return domain.JobRecord{}, err
	}
	dates.Start = domain.Day(dates.Start)
	dates.End = domain.Day(dates.End)
	if today := domain.Day(s.now()); dates.End.After(today) {
		return domain.JobRecord{}, domain.Validationf("end_date %s is in the future", dates.End.Format("2006-01-02"))
	}
	if reportType == "" {
		reportType = ads.ReportTypeKeywords
	}

	job, err := s.jobs.Create(ctx, domain.JobKindFetch, domain.MetaMap{
		"profile_id":  profileID,
		"start_date":  dates.Start.Format("2006-01-02"),
		"end_date":    dates.End.Format("2006-01-02"),
		"report_type": reportType,
	})
	if err != nil {
		return domain.JobRecord{}, fmt.Errorf("create fetch job: %w", err)
	}

	runCtx := logger.SetComponent(context.Background(), "fetch")
	runCtx = logger.SetJobID(runCtx, job.ID)
	runCtx = logger.SetProfileID(runCtx, profileID)
	go s.run(runCtx, job.ID, profileID, dates, reportType)

	return job, nil
}

// run executes the phase machine for one job. It never returns an error:
// every failure path lands the job in a terminal state instead.
func (s *FetchService) run(ctx context.Context, jobID, profileID string, dates domain.DateRange, reportType string) {
	defer func() {
		if r := recover(); r != nil {
			s.log(ctx).WithField("panic", r).Error("Fetch job panicked")
			s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.log(ctx).WithFields(logger.Fields{
		"start_date":  dates.Start.Format("2006-01-02"),
		"end_date":    dates.End.Format("2006-01-02"),
		"report_type": reportType,
	}).Info("Starting fetch job")
	s.update(ctx, jobID, registry.Update{}.
		WithStatus(domain.JobStatusInProgress).
		WithProgress(0).
		WithMeta(metaPhase, phaseAuthenticating))

	// Authenticate up front so credential problems surface before any
	// report work. Later calls reuse the cached token.
	if _, err := s.client.AccessToken(ctx); err != nil {
		s.log(ctx).WithError(err).Error("Authentication failed")
		s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("authentication failed: %v", err))
		return
	}

	s.update(ctx, jobID, registry.Update{}.WithMeta(metaPhase, phaseRequesting))
	var reportID string
	err := s.withRetry(ctx, "request report", func() error {
		var reqErr error
		reportID, reqErr = s.client.RequestReport(ctx, profileID, dates, reportType)
		return reqErr
	})
	if err != nil {
		s.log(ctx).WithError(err).Error("Report request failed")
		s.finish(ctx, jobID, domain.JobStatusFailed, err.Error())
		return
	}
	s.update(ctx, jobID, registry.Update{}.
		WithProgress(s.cfg.ProgressRequested).
		WithMeta("report_id", reportID).
		WithMeta(metaPhase, phasePolling))

	location, ok := s.poll(ctx, jobID, profileID, reportID)
	if !ok {
		return
	}

	s.update(ctx, jobID, registry.Update{}.WithMeta(metaPhase, phaseDownloading))
	raw, err := s.client.DownloadReport(ctx, location)
	if err != nil {
		s.log(ctx).WithError(err).Error("Report download failed")
		s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("download failed: %v", err))
		return
	}
	if s.cfg.ArchiveReports && s.archive != nil {
		s.archiveReport(ctx, profileID, jobID, raw)
	}

	records, parseErrors := s.parseRows(ctx, raw, dates.End)
	u := registry.Update{}.
		WithProgress(s.cfg.ProgressDownloaded).
		WithMeta(metaPhase, phasePersisting)
	u.AppendErrors = parseErrors
	s.update(ctx, jobID, u)

	// Persist in batches, advancing records_fetched as each batch lands so
	// a concurrent status read never reports rows the store does not hold.
	applied := 0
	for start := 0; start < len(records); start += persistBatchSize {
		batch := records[start:min(start+persistBatchSize, len(records))]
		n, err := s.perf.Upsert(ctx, batch, profileID, domain.SourceAPI)
		applied += n
		if err != nil {
			s.log(ctx).WithError(err).WithField(logger.FieldCount, applied).Error("Failed to persist records")
			s.finish(ctx, jobID, domain.JobStatusFailed,
				fmt.Sprintf("stored %d of %d records: %v", applied, len(records), err))
			return
		}
		s.update(ctx, jobID, registry.Update{}.WithCounter(domain.CounterRecordsFetched, int64(applied)))
	}
	s.sink.RecordsUpserted(domain.SourceAPI, applied)

	s.update(ctx, jobID, registry.Update{}.
		WithStatus(domain.JobStatusCompleted).
		WithProgress(100).
		WithCounter(domain.CounterRecordsFetched, int64(applied)).
		WithMeta(metaPhase, phaseDone))
	s.log(ctx).WithField(logger.FieldCount, applied).Info("Fetch job completed")
	s.afterFinish(ctx, jobID, int64(applied))
}

// poll drives the polling phase. It returns the download location on
// success; on failure or timeout the job is already terminal and ok is
// false.
func (s *FetchService) poll(ctx context.Context, jobID, profileID, reportID string) (location string, ok bool) {
	began := s.now()
	for {
		if elapsed := s.now().Sub(began); elapsed >= s.cfg.PollTimeout {
			s.log(ctx).WithField("report_id", reportID).Error("Report polling timed out")
			s.finish(ctx, jobID, domain.JobStatusTimeout,
				fmt.Sprintf("report %s did not complete within %s", reportID, s.cfg.PollTimeout))
			return "", false
		}

		var status ads.ReportStatus
		err := s.withRetry(ctx, "poll report status", func() error {
			var pollErr error
			status, pollErr = s.client.ReportStatus(ctx, profileID, reportID)
			return pollErr
		})
		if err != nil {
			s.log(ctx).WithError(err).Error("Report status poll failed")
			s.finish(ctx, jobID, domain.JobStatusFailed, err.Error())
			return "", false
		}

		switch {
		case status.Ready():
			if status.Location == "" {
				s.finish(ctx, jobID, domain.JobStatusFailed,
					fmt.Sprintf("report %s succeeded but no download location provided", reportID))
				return "", false
			}
			return status.Location, true
		case status.Failed():
			detail := status.StatusDetails
			if detail == "" {
				detail = string(status.Status)
			}
			s.finish(ctx, jobID, domain.JobStatusFailed,
				fmt.Sprintf("report %s failed: %s", reportID, detail))
			return "", false
		case status.Running():
			// keep polling
		default:
			s.log(ctx).WithField("status", string(status.Status)).Warn("Unknown report status, continuing to poll")
		}

		s.update(ctx, jobID, registry.Update{}.WithProgress(s.pollProgress(s.now().Sub(began))))
		// never sleep past the poll deadline
		wait := s.cfg.PollInterval
		if remaining := s.cfg.PollTimeout - s.now().Sub(began); remaining < wait {
			wait = remaining
		}
		if err := s.sleep(ctx, wait); err != nil {
			s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("polling interrupted: %v", err))
			return "", false
		}
	}
}

// pollProgress maps elapsed poll time onto the window between the requested
// and polled milestones. The registry's clamp keeps it monotone.
func (s *FetchService) pollProgress(elapsed time.Duration) float64 {
	frac := float64(elapsed) / float64(s.cfg.PollTimeout)
	if frac > 1 {
		frac = 1
	}
	return s.cfg.ProgressRequested + (s.cfg.ProgressPolled-s.cfg.ProgressRequested)*frac
}

// parseRows decodes raw report rows, mapping provider fields onto
// performance records. Rows that fail to decode are skipped and described.
func (s *FetchService) parseRows(ctx context.Context, raw []json.RawMessage, reportDate time.Time) ([]domain.PerformanceRecord, []string) {
	records := make([]domain.PerformanceRecord, 0, len(raw))
	var errs []string
	for i, msg := range raw {
		row, err := ads.DecodeRow(msg)
		if err != nil {
			errs = append(errs, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		records = append(records, row.Performance(reportDate))
	}
	if len(errs) > 0 {
		s.log(ctx).WithField(logger.FieldCount, len(errs)).Warn("Skipped unparseable report records")
	}
	return records, errs
}

// archiveReport best-effort stores the raw payload for later inspection.
func (s *FetchService) archiveReport(ctx context.Context, profileID, jobID string, raw []json.RawMessage) {
	body, err := json.Marshal(raw)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to encode report archive")
		return
	}
	key := storage.ReportArchiveKey(profileID, jobID)
	if err := s.archive.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		s.log(ctx).WithError(err).WithField("key", key).Warn("Failed to archive report payload")
		return
	}
	s.log(ctx).WithField("key", key).Info("Archived raw report payload")
}

// withRetry runs call until it succeeds, fails non-retryably, or exhausts
// MaxRetries extra attempts, backing off exponentially in between.
func (s *FetchService) withRetry(ctx context.Context, op string, call func() error) error {
	for attempt := 0; ; attempt++ {
		err := call()
		if err == nil || !ads.IsRetryable(err) {
			return err
		}
		if attempt >= s.cfg.MaxRetries {
			return fmt.Errorf("%s failed after %d attempts: %w", op, attempt+1, err)
		}
		wait := s.cfg.BackoffBase * time.Duration(1<<attempt)
		s.log(ctx).WithError(err).WithFields(logger.Fields{
			"attempt":  attempt + 1,
			"retry_in": wait.String(),
		}).Warn("Retrying " + op)
		if serr := s.sleep(ctx, wait); serr != nil {
			return fmt.Errorf("%s interrupted: %w", op, serr)
		}
	}
}

