// Package analytics keeps optional per-day usage counters in Redis. The
// recorder is fire-and-forget: when Redis is down or not configured the
// rest of the system is unaffected.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pkaminski/adspulse/internal/logger"
)

// Recorder increments daily activity counters keyed by job kind and profile.
// A nil Recorder (or one built from a nil client) drops every write.
type Recorder struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRecorder creates a Recorder on an established Redis client.
// Parameters:
//   - client: connected Redis client; nil disables recording.
//   - ttl: expiry applied to each counter key; non-positive means 30 days.
// Returns:
//   - *Recorder: recorder instance, never nil.
func NewRecorder(client *redis.Client, ttl time.Duration) *Recorder {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Recorder{
		client: client,
		ttl:    ttl,
		log:    logger.GetDefault().WithField(logger.FieldComponent, "analytics"),
	}
}

// JobCompleted bumps the day's counter for one finished job. Failures are
// logged and swallowed.
// Parameters:
//   - ctx: carries cancellation into the Redis pipeline.
//   - kind: job kind tag (fetch, import).
//   - profileID: owning profile.
//   - records: how many records the job produced; counters below 1 still
//     mark the day with an increment of 0 so the key exists.
func (r *Recorder) JobCompleted(ctx context.Context, kind, profileID string, records int64, when time.Time) {
	if r == nil || r.client == nil {
		return
	}
	key := dailyKey(kind, profileID, when)

	pipe := r.client.Pipeline()
	pipe.IncrBy(ctx, key, records)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.log.WithError(err).WithField("key", key).Warn("Failed to record usage counter")
	}
}

func dailyKey(kind, profileID string, t time.Time) string {
	return fmt.Sprintf("analytics:%s:%s:%s", kind, profileID, t.UTC().Format("20060102"))
}
