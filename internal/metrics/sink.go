// Package metrics records operational counters for job runs, outbound ads
// API calls and store writes. Implementations are fire-and-forget: they must
// not block or propagate errors into the paths they observe.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sink receives instrumentation events from the orchestrators and the ads
// client. A no-op implementation stands in when metrics are disabled.
type Sink interface {
	// JobCompleted counts one job reaching a terminal status.
	JobCompleted(kind, status string)
	// APIRequest counts one outbound ads API call and its latency.
	APIRequest(op, statusClass string, duration time.Duration)
	// RecordsUpserted counts performance rows written to the store.
	RecordsUpserted(source string, n int)
}

// Status classes for APIRequest.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a response status code and transport error to one of
// the StatusClass labels.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusClassTimeout
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return StatusClassTimeout
		}
		if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial") {
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
