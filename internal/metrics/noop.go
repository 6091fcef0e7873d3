package metrics

import "time"

// NoopSink discards all instrumentation. Used when metrics are disabled so
// callers never need nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) JobCompleted(kind, status string)                         {}
func (n *NoopSink) APIRequest(op, statusClass string, duration time.Duration) {}
func (n *NoopSink) RecordsUpserted(source string, count int)                 {}
