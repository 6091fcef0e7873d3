package ads

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterBurstThenSpacing(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	l := newLimiter(2.0,
		func() time.Time { return current },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			current = current.Add(d)
			return nil
		})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("Wait() %d error = %v", i, err)
		}
	}
	if len(slept) != 0 {
		t.Fatalf("burst calls slept %v, want none", slept)
	}

	// Bucket is empty now; the next admission costs half a second at 2/s.
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if len(slept) != 1 || slept[0] != 500*time.Millisecond {
		t.Errorf("slept = %v, want one 500ms pause", slept)
	}
}

func TestLimiterRefillsWhileIdle(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var slept []time.Duration
	l := newLimiter(1.0,
		func() time.Time { return current },
		func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			current = current.Add(d)
			return nil
		})

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	current = current.Add(3 * time.Second)
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("Wait() after idle error = %v", err)
	}
	if len(slept) != 0 {
		t.Errorf("slept = %v, want no pause after idle refill", slept)
	}
}

func TestLimiterZeroRateNeverBlocks(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}

func TestLimiterHonorsCancellation(t *testing.T) {
	// Frozen clock: the bucket never refills, so the second Wait must sleep.
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newLimiter(1.0, func() time.Time { return fixed }, sleepContext)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}
