package ads

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket shared by every outbound API call, so however
// many fetch jobs run at once they collectively stay under one rate ceiling.
// A rate of zero or less disables throttling.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter returns a limiter admitting perSecond calls per second with a
// burst of the same size (at least one).
func NewLimiter(perSecond float64) *Limiter {
	return newLimiter(perSecond, time.Now, sleepContext)
}

func newLimiter(perSecond float64, now func() time.Time, sleep func(context.Context, time.Duration) error) *Limiter {
	burst := perSecond
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rate:   perSecond,
		burst:  burst,
		tokens: burst,
		last:   now(),
		now:    now,
		sleep:  sleep,
	}
}

// Wait blocks until the bucket admits one call or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rate <= 0 {
		return ctx.Err()
	}
	for {
		l.mu.Lock()
		now := l.now()
		elapsed := now.Sub(l.last).Seconds()
		l.last = now
		l.tokens += elapsed * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
