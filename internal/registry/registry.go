// Package registry tracks asynchronous jobs on behalf of concurrent callers.
// It knows nothing about what a job does; orchestrators own all mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pkaminski/adspulse/internal/domain"
)

// ErrNotFound signals that the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// ErrTerminalState signals an attempt to move a finished job to a different status.
var ErrTerminalState = errors.New("job already in a terminal state")

// Update is a partial mutation applied atomically by Registry.Update.
// Nil fields are left untouched. Progress below the stored value is clamped
// upward (monotonicity is enforced here, not trusted to callers); Counters
// merge by key with absolute values; AppendErrors and Metadata merge into
// the existing record.
type Update struct {
	Status       *domain.JobStatus
	Progress     *float64
	Counters     domain.CounterMap
	AppendErrors []string
	Metadata     domain.MetaMap
}

// WithStatus returns a copy of the update that also sets the status.
func (u Update) WithStatus(s domain.JobStatus) Update {
	u.Status = &s
	return u
}

// WithProgress returns a copy of the update that also sets the progress.
func (u Update) WithProgress(p float64) Update {
	u.Progress = &p
	return u
}

// WithCounter returns a copy of the update that also sets one counter.
func (u Update) WithCounter(name string, value int64) Update {
	merged := make(domain.CounterMap, len(u.Counters)+1)
	for k, v := range u.Counters {
		merged[k] = v
	}
	merged[name] = value
	u.Counters = merged
	return u
}

// WithError returns a copy of the update that also appends an error message.
func (u Update) WithError(msg string) Update {
	u.AppendErrors = append(append([]string(nil), u.AppendErrors...), msg)
	return u
}

// WithMeta returns a copy of the update that also merges one metadata entry.
func (u Update) WithMeta(key, value string) Update {
	merged := make(domain.MetaMap, len(u.Metadata)+1)
	for k, v := range u.Metadata {
		merged[k] = v
	}
	merged[key] = value
	u.Metadata = merged
	return u
}

// Registry is the concurrency-safe store of job records. Implementations
// guarantee linearizable operations: a Get never observes a partially
// applied Update, and terminal statuses never transition further.
type Registry interface {
	// Create inserts a pending record for the given kind and returns a snapshot.
	Create(ctx context.Context, kind domain.JobKind, metadata domain.MetaMap) (domain.JobRecord, error)
	// Get returns a consistent snapshot of one job, or ErrNotFound.
	Get(ctx context.Context, id string) (domain.JobRecord, error)
	// Update applies a partial update atomically and returns the new snapshot.
	Update(ctx context.Context, id string, u Update) (domain.JobRecord, error)
	// List returns a snapshot of jobs, newest first, filtered by kind when non-empty.
	List(ctx context.Context, kind domain.JobKind) ([]domain.JobRecord, error)
	// Sweep removes terminal jobs finished more than maxAge ago and reports
	// the count removed. Live jobs are never swept regardless of age.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)
}

// NewID builds a sortable, collision-resistant job id of the form
// {kind}_{YYYYMMDD_HHMMSS}_{8-hex} without a central counter.
func NewID(kind domain.JobKind, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s", kind, now.UTC().Format("20060102_150405"), uuid.New().String()[:8])
}
