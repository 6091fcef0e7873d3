package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkaminski/adspulse/internal/analytics"
	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/events"
	"github.com/pkaminski/adspulse/internal/logger"
	"github.com/pkaminski/adspulse/internal/metrics"
	"github.com/pkaminski/adspulse/internal/registry"
	"github.com/pkaminski/adspulse/internal/storage"
	"github.com/pkaminski/adspulse/internal/store"
)

// Import runs report their position through these progress marks; the
// parse/persist split mirrors where the time actually goes.
const (
	importProgressParsing    = 10.0
	importProgressPersisting = 50.0
)

// ImportService turns uploaded spreadsheets into performance records. It is
// the thinner twin of the fetch orchestrator: same job contract, no
// external API.
type ImportService struct {
	jobRunner
	perf    store.Store
	uploads UploadStore
	files   storage.ObjectStorage
}

// NewImportService creates an import orchestrator.
// Parameters:
//   - jobs: registry receiving progress and terminal states.
//   - perf: store receiving imported records.
//   - uploads: upload metadata lookup.
//   - files: object storage holding the uploaded spreadsheets.
//   - sink: metrics sink; nil falls back to a no-op sink.
//   - usage: optional usage recorder; nil disables counters.
//   - bus: job event publisher; nil falls back to a no-op publisher.
//   - log: base logger.
// Returns:
//   - *ImportService: orchestrator ready to start jobs.
func NewImportService(
	jobs registry.Registry,
	perf store.Store,
	uploads UploadStore,
	files storage.ObjectStorage,
	sink metrics.Sink,
	usage *analytics.Recorder,
	bus events.Publisher,
	log *logger.Logger,
) *ImportService {
	return &ImportService{
		jobRunner: newJobRunner(jobs, sink, usage, bus, log, "import"),
		perf:      perf,
		uploads:   uploads,
		files:     files,
	}
}

// StartImport validates the request, creates a job and launches the run in
// its own goroutine.
// Parameters:
//   - ctx: request context; the run itself is detached from the caller.
//   - uploadID: previously stored upload to import.
//   - profileID: profile the records are imported into.
// Returns:
//   - domain.JobRecord: the pending job snapshot.
//   - error: validation failure, or ErrUploadNotFound for unknown uploads.
func (s *ImportService) StartImport(ctx context.Context, uploadID, profileID string) (domain.JobRecord, error) {
	if strings.TrimSpace(uploadID) == "" {
		return domain.JobRecord{}, domain.Validationf("upload_id is required")
	}
	if strings.TrimSpace(profileID) == "" {
		return domain.JobRecord{}, domain.Validationf("profile_id is required")
	}
	upload, err := s.uploads.Get(ctx, uploadID)
	if err != nil {
		return domain.JobRecord{}, err
	}

	job, err := s.jobs.Create(ctx, domain.JobKindImport, domain.MetaMap{
		"profile_id": profileID,
		"upload_id":  upload.ID,
		"filename":   upload.Filename,
	})
	if err != nil {
		return domain.JobRecord{}, fmt.Errorf("create import job: %w", err)
	}

	runCtx := logger.SetComponent(context.Background(), "import")
	runCtx = logger.SetJobID(runCtx, job.ID)
	runCtx = logger.SetProfileID(runCtx, profileID)
	go s.run(runCtx, job.ID, profileID, upload)

	return job, nil
}

// run parses one upload and writes its rows through the store. It never
// returns an error: every failure path lands the job in a terminal state.
func (s *ImportService) run(ctx context.Context, jobID, profileID string, upload *domain.Upload) {
	defer func() {
		if r := recover(); r != nil {
			s.log(ctx).WithField("panic", r).Error("Import job panicked")
			s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("internal error: %v", r))
		}
	}()

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldUploadID: upload.ID,
		"filename":           upload.Filename,
	}).Info("Starting import job")
	s.update(ctx, jobID, registry.Update{}.
		WithStatus(domain.JobStatusInProgress).
		WithProgress(importProgressParsing).
		WithMeta(metaPhase, "parsing"))

	body, err := s.files.Download(ctx, upload.StorageKey)
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to open uploaded spreadsheet")
		s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("read upload: %v", err))
		return
	}
	res, err := ParseCSV(body, s.now())
	body.Close()
	if err != nil {
		s.log(ctx).WithError(err).Error("Failed to parse uploaded spreadsheet")
		s.finish(ctx, jobID, domain.JobStatusFailed, fmt.Sprintf("parse upload: %v", err))
		return
	}

	u := registry.Update{}.
		WithProgress(importProgressPersisting).
		WithCounter(domain.CounterRowsProcessed, int64(res.RowsProcessed)).
		WithCounter(domain.CounterRowsSkipped, int64(res.RowsSkipped)).
		WithMeta(metaPhase, "persisting")
	u.AppendErrors = res.Errors
	s.update(ctx, jobID, u)

	applied, err := s.perf.Upsert(ctx, res.Records, profileID, domain.SourceUpload)
	if err != nil {
		s.log(ctx).WithError(err).WithField(logger.FieldCount, applied).Error("Failed to persist imported records")
		s.finish(ctx, jobID, domain.JobStatusFailed,
			fmt.Sprintf("stored %d of %d records: %v", applied, len(res.Records), err))
		return
	}
	s.sink.RecordsUpserted(domain.SourceUpload, applied)

	s.update(ctx, jobID, registry.Update{}.
		WithStatus(domain.JobStatusCompleted).
		WithProgress(100).
		WithCounter(domain.CounterRowsAdded, int64(applied)).
		WithMeta(metaPhase, phaseDone))
	s.log(ctx).WithFields(logger.Fields{
		"rows_processed": res.RowsProcessed,
		"rows_added":     applied,
		"rows_skipped":   res.RowsSkipped,
	}).Info("Import job completed")
	s.afterFinish(ctx, jobID, int64(applied))
}
