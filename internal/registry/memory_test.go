package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkaminski/adspulse/internal/domain"
)

func testClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	var mu sync.Mutex
	current := start
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	advance := func(d time.Duration) {
		mu.Lock()
		current = current.Add(d)
		mu.Unlock()
	}
	return now, advance
}

func TestCreateStartsPending(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	job, err := m.Create(ctx, domain.JobKindFetch, domain.MetaMap{"profile_id": "P1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := m.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != domain.JobStatusPending {
		t.Errorf("new job status = %s, want %s", got.Status, domain.JobStatusPending)
	}
	if got.Progress != 0 {
		t.Errorf("new job progress = %v, want 0", got.Progress)
	}
	if got.CompletedAt != nil {
		t.Errorf("new job completed_at = %v, want nil", got.CompletedAt)
	}
	if got.Metadata["profile_id"] != "P1" {
		t.Errorf("metadata not stored: %v", got.Metadata)
	}
}

func TestNewIDFormat(t *testing.T) {
	now := time.Date(2025, 11, 3, 14, 30, 5, 0, time.UTC)
	id := NewID(domain.JobKindImport, now)

	if !strings.HasPrefix(id, "import_20251103_143005_") {
		t.Errorf("unexpected id format: %s", id)
	}
	parts := strings.Split(id, "_")
	if len(parts) != 4 {
		t.Fatalf("id has %d parts, want 4: %s", len(parts), id)
	}
	if len(parts[3]) != 8 {
		t.Errorf("random suffix length = %d, want 8", len(parts[3]))
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job, _ := m.Create(ctx, domain.JobKindFetch, nil)

	steps := []struct {
		set  float64
		want float64
	}{
		{10, 10},
		{60, 60},
		{30, 60},  // lower value is clamped upward
		{150, 100}, // above the scale is capped
		{99, 100},
	}
	for _, step := range steps {
		got, err := m.Update(ctx, job.ID, Update{}.WithProgress(step.set))
		if err != nil {
			t.Fatalf("Update(%v) failed: %v", step.set, err)
		}
		if got.Progress != step.want {
			t.Errorf("after setting %v progress = %v, want %v", step.set, got.Progress, step.want)
		}
	}
}

func TestTerminalStatusIsSticky(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job, _ := m.Create(ctx, domain.JobKindFetch, nil)

	done, err := m.Update(ctx, job.ID, Update{}.WithStatus(domain.JobStatusCompleted))
	if err != nil {
		t.Fatalf("completing job failed: %v", err)
	}
	if done.CompletedAt == nil {
		t.Fatal("completed job has nil completed_at")
	}

	if _, err := m.Update(ctx, job.ID, Update{}.WithStatus(domain.JobStatusFailed)); !errors.Is(err, ErrTerminalState) {
		t.Errorf("transition from terminal state: err = %v, want ErrTerminalState", err)
	}

	// Reads after the terminal transition stay identical.
	again, err := m.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if again.Status != domain.JobStatusCompleted {
		t.Errorf("status changed after denied transition: %s", again.Status)
	}
	if !again.CompletedAt.Equal(*done.CompletedAt) {
		t.Errorf("completed_at changed: %v != %v", again.CompletedAt, done.CompletedAt)
	}
}

func TestFailBeforeStartSetsCompletedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job, _ := m.Create(ctx, domain.JobKindImport, nil)

	// Straight from pending to failed, as when setup fails before any work.
	got, err := m.Update(ctx, job.ID, Update{}.WithStatus(domain.JobStatusFailed).WithError("missing credentials"))
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.CompletedAt == nil {
		t.Error("failed job has nil completed_at")
	}
	if len(got.Errors) != 1 || got.Errors[0] != "missing credentials" {
		t.Errorf("errors = %v, want one entry", got.Errors)
	}
}

func TestUnknownJobReturnsNotFound(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Get(ctx, "fetch_20250101_000000_deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown id: err = %v, want ErrNotFound", err)
	}
	if _, err := m.Update(ctx, "nope", Update{}.WithProgress(10)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestListFiltersByKindNewestFirst(t *testing.T) {
	now, advance := testClock(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemoryWithClock(now)
	ctx := context.Background()

	first, _ := m.Create(ctx, domain.JobKindFetch, nil)
	advance(time.Minute)
	second, _ := m.Create(ctx, domain.JobKindImport, nil)
	advance(time.Minute)
	third, _ := m.Create(ctx, domain.JobKindFetch, nil)

	all, err := m.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List returned %d jobs, want 3", len(all))
	}
	if all[0].ID != third.ID || all[2].ID != first.ID {
		t.Errorf("List order wrong: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
	}

	fetches, _ := m.List(ctx, domain.JobKindFetch)
	if len(fetches) != 2 {
		t.Fatalf("List(fetch) returned %d jobs, want 2", len(fetches))
	}
	for _, j := range fetches {
		if j.Kind != domain.JobKindFetch {
			t.Errorf("List(fetch) returned kind %s", j.Kind)
		}
	}
	if second.Kind != domain.JobKindImport {
		t.Fatalf("setup: second job kind = %s", second.Kind)
	}
}

func TestSweepRemovesOnlyOldTerminalJobs(t *testing.T) {
	now, advance := testClock(time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemoryWithClock(now)
	ctx := context.Background()

	oldDone, _ := m.Create(ctx, domain.JobKindFetch, nil)
	m.Update(ctx, oldDone.ID, Update{}.WithStatus(domain.JobStatusCompleted))

	oldLive, _ := m.Create(ctx, domain.JobKindFetch, nil)
	m.Update(ctx, oldLive.ID, Update{}.WithStatus(domain.JobStatusInProgress))

	advance(48 * time.Hour)

	freshDone, _ := m.Create(ctx, domain.JobKindImport, nil)
	m.Update(ctx, freshDone.ID, Update{}.WithStatus(domain.JobStatusFailed))

	removed, err := m.Sweep(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep removed %d jobs, want 1", removed)
	}

	if _, err := m.Get(ctx, oldDone.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("old terminal job survived sweep: err = %v", err)
	}
	if _, err := m.Get(ctx, oldLive.ID); err != nil {
		t.Errorf("live job was swept: %v", err)
	}
	if _, err := m.Get(ctx, freshDone.ID); err != nil {
		t.Errorf("fresh terminal job was swept: %v", err)
	}
}

func TestConcurrentUpdatesStayConsistent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	job, _ := m.Create(ctx, domain.JobKindFetch, nil)
	m.Update(ctx, job.ID, Update{}.WithStatus(domain.JobStatusInProgress))

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				p := float64(i * 2)
				m.Update(ctx, job.ID, Update{}.
					WithProgress(p).
					WithCounter(domain.CounterRecordsFetched, int64(i)).
					WithError("transient"))
				m.Get(ctx, job.ID)
			}
		}(w)
	}
	wg.Wait()

	got, err := m.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Progress != float64((perWorker-1)*2) {
		t.Errorf("final progress = %v, want %v", got.Progress, float64((perWorker-1)*2))
	}
	if len(got.Errors) != workers*perWorker {
		t.Errorf("errors length = %d, want %d", len(got.Errors), workers*perWorker)
	}
	if got.Status != domain.JobStatusInProgress {
		t.Errorf("status = %s, want in_progress", got.Status)
	}
}
