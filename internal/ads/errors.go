package ads

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the advertising API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("amazon ads %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Retryable reports whether the response is worth retrying. Throttling and
// server-side failures are; client errors mean the request itself is wrong.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// AuthError is a failed credential exchange. Auth failures are fatal for the
// job that hit them; a retry with the same refresh token will not do better.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("amazon ads token exchange: %v", e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsRetryable classifies a client error for the orchestrator's retry loop:
// transport failures and retryable API responses qualify, auth failures and
// 4xx responses do not, and a cancelled context ends the attempt outright.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
