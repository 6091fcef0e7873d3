package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pkaminski/adspulse/internal/domain"
)

// UploadStore tracks uploaded spreadsheet metadata. The import orchestrator
// resolves upload ids through it; the boundary layer records new uploads.
// Implementations return domain.ErrUploadNotFound for unknown ids.
type UploadStore interface {
	Create(ctx context.Context, upload *domain.Upload) error
	Get(ctx context.Context, id string) (*domain.Upload, error)
	ListByProfile(ctx context.Context, profileID string, limit int) ([]domain.Upload, error)
}

// MemoryUploads is the in-memory UploadStore, paired with the in-memory
// registry and performance store when no database is configured.
type MemoryUploads struct {
	mu      sync.RWMutex
	uploads map[string]domain.Upload
}

// NewMemoryUploads returns an empty in-memory upload store.
func NewMemoryUploads() *MemoryUploads {
	return &MemoryUploads{uploads: make(map[string]domain.Upload)}
}

// Create stores a copy of the upload record.
func (m *MemoryUploads) Create(ctx context.Context, upload *domain.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[upload.ID] = *upload
	return nil
}

// Get returns one upload, or domain.ErrUploadNotFound.
func (m *MemoryUploads) Get(ctx context.Context, id string) (*domain.Upload, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.uploads[id]
	if !ok {
		return nil, domain.ErrUploadNotFound
	}
	out := u
	return &out, nil
}

// ListByProfile returns a profile's uploads, newest first.
func (m *MemoryUploads) ListByProfile(ctx context.Context, profileID string, limit int) ([]domain.Upload, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Upload
	for _, u := range m.uploads {
		if u.ProfileID == profileID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
