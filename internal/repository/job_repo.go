package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/pkaminski/adspulse/internal/domain"
	"github.com/pkaminski/adspulse/internal/registry"
)

// JobRepository is the database-backed job registry engine. Updates run in a
// transaction around a read-modify-write so the progress clamp and terminal
// rules from the registry package apply to persisted jobs too.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Create inserts a pending job record and returns a snapshot of it.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: job kind tag.
//   - metadata: kind-specific context copied into the record.
// Returns:
//   - domain.JobRecord: the stored record.
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, kind domain.JobKind, metadata domain.MetaMap) (domain.JobRecord, error) {
	now := r.now()
	job := domain.JobRecord{
		ID:        registry.NewID(kind, now),
		Kind:      kind,
		Status:    domain.JobStatusPending,
		Progress:  0,
		Counters:  domain.CounterMap{},
		Errors:    domain.StringArray{},
		Metadata:  domain.MetaMap{},
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for k, v := range metadata {
		job.Metadata[k] = v
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return domain.JobRecord{}, err
	}
	return job.Clone(), nil
}

// Get retrieves one job by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job identifier.
// Returns:
//   - domain.JobRecord: the stored record.
//   - error: registry.ErrNotFound for unknown ids, other errors from the database.
func (r *JobRepository) Get(ctx context.Context, id string) (domain.JobRecord, error) {
	var job domain.JobRecord
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.JobRecord{}, registry.ErrNotFound
		}
		return domain.JobRecord{}, err
	}
	return job, nil
}

// Update applies a partial update atomically and returns the new snapshot.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job identifier.
//   - u: partial update to apply.
// Returns:
//   - domain.JobRecord: the record after the update.
//   - error: registry.ErrNotFound or registry.ErrTerminalState when rejected.
func (r *JobRepository) Update(ctx context.Context, id string, u registry.Update) (domain.JobRecord, error) {
	var out domain.JobRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.JobRecord
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return registry.ErrNotFound
			}
			return err
		}
		if err := registry.ApplyUpdate(&job, u, r.now()); err != nil {
			return err
		}
		if err := tx.Save(&job).Error; err != nil {
			return err
		}
		out = job
		return nil
	})
	if err != nil {
		return domain.JobRecord{}, err
	}
	return out, nil
}

// List returns jobs newest first, filtered by kind when non-empty.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - kind: job kind filter; empty means all kinds.
// Returns:
//   - []domain.JobRecord: matching records.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, kind domain.JobKind) ([]domain.JobRecord, error) {
	query := r.db.WithContext(ctx)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var jobs []domain.JobRecord
	if err := query.Order("started_at DESC, id DESC").Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Sweep deletes terminal jobs finished more than maxAge ago. Live jobs are
// never removed regardless of age.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - maxAge: minimum age since completion before a job is removed.
// Returns:
//   - int: number of records removed.
//   - error: non-nil if the delete fails.
func (r *JobRepository) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := r.now().Add(-maxAge)
	res := r.db.WithContext(ctx).
		Where("status IN ?", []domain.JobStatus{
			domain.JobStatusCompleted,
			domain.JobStatusFailed,
			domain.JobStatusTimeout,
		}).
		Where("completed_at IS NOT NULL AND completed_at < ?", cutoff).
		Delete(&domain.JobRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
