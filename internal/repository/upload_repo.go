package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/pkaminski/adspulse/internal/domain"
)

// UploadRepository persists upload metadata rows.
type UploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates a new UploadRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *UploadRepository: repository instance bound to db.
func NewUploadRepository(db *gorm.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new upload row.
// Parameters:
//   - ctx: request context for cancellation.
//   - upload: populated upload record; ID must be set by the caller.
// Returns:
//   - error: insert failure, if any.
func (r *UploadRepository) Create(ctx context.Context, upload *domain.Upload) error {
	return r.db.WithContext(ctx).Create(upload).Error
}

// Get fetches one upload by id.
// Parameters:
//   - ctx: request context for cancellation.
//   - id: upload identifier.
// Returns:
//   - *domain.Upload: the stored row.
//   - error: domain.ErrUploadNotFound when the id is unknown.
func (r *UploadRepository) Get(ctx context.Context, id string) (*domain.Upload, error) {
	var upload domain.Upload
	err := r.db.WithContext(ctx).First(&upload, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &upload, nil
}

// ListByProfile returns a profile's uploads, newest first.
// Parameters:
//   - ctx: request context for cancellation.
//   - profileID: owning profile.
//   - limit: maximum rows to return; non-positive means 50.
// Returns:
//   - []domain.Upload: matching uploads ordered by created_at descending.
//   - error: query failure, if any.
func (r *UploadRepository) ListByProfile(ctx context.Context, profileID string, limit int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	var uploads []domain.Upload
	err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&uploads).Error
	if err != nil {
		return nil, err
	}
	return uploads, nil
}
