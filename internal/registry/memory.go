package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

// Memory is the reference in-memory Registry, backed by a mutex-guarded map.
// Snapshots returned to callers are deep copies, so readers never observe a
// record mid-mutation.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.JobRecord
	now  func() time.Time
}

// NewMemory builds an empty in-memory registry.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock builds an in-memory registry with an injected clock.
// Tests use this to control timestamps without sleeping.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		jobs: make(map[string]*domain.JobRecord),
		now:  now,
	}
}

// Create inserts a pending record and returns a snapshot of it.
func (m *Memory) Create(ctx context.Context, kind domain.JobKind, metadata domain.MetaMap) (domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	job := &domain.JobRecord{
		ID:        NewID(kind, now),
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
	m.jobs[job.ID] = job
	return job.Clone(), nil
}

// Get returns a snapshot of one job, or ErrNotFound.
func (m *Memory) Get(ctx context.Context, id string) (domain.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.JobRecord{}, ErrNotFound
	}
	return job.Clone(), nil
}

// Update applies a partial update atomically and returns the new snapshot.
func (m *Memory) Update(ctx context.Context, id string, u Update) (domain.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return domain.JobRecord{}, ErrNotFound
	}
	if err := ApplyUpdate(job, u, m.now()); err != nil {
		return domain.JobRecord{}, err
	}
	return job.Clone(), nil
}

// List returns a snapshot of jobs, newest first.
func (m *Memory) List(ctx context.Context, kind domain.JobKind) ([]domain.JobRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.JobRecord, 0, len(m.jobs))
	for _, job := range m.jobs {
		if kind != "" && job.Kind != kind {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Sweep removes terminal jobs finished more than maxAge ago.
func (m *Memory) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if !job.Status.Terminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// ApplyUpdate mutates job in place under the caller's lock or transaction.
// Both registry engines funnel updates through here so the progress clamp
// and terminal rules never diverge.
func ApplyUpdate(job *domain.JobRecord, u Update, now time.Time) error {
	if u.Status != nil {
		if job.Status.Terminal() && *u.Status != job.Status {
			return ErrTerminalState
		}
		job.Status = *u.Status
		if job.Status.Terminal() && job.CompletedAt == nil {
			t := now
			job.CompletedAt = &t
		}
	}
	if u.Progress != nil {
		p := *u.Progress
		if p > 100 {
			p = 100
		}
		if p > job.Progress {
			job.Progress = p
		}
	}
	if len(u.Counters) > 0 {
		if job.Counters == nil {
			job.Counters = domain.CounterMap{}
		}
		for k, v := range u.Counters {
			job.Counters[k] = v
		}
	}
	if len(u.AppendErrors) > 0 {
		job.Errors = append(job.Errors, u.AppendErrors...)
	}
	if len(u.Metadata) > 0 {
		if job.Metadata == nil {
			job.Metadata = domain.MetaMap{}
		}
		for k, v := range u.Metadata {
			job.Metadata[k] = v
		}
	}
	job.UpdatedAt = now
	return nil
}
