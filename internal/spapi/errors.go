package spapi

import (
	"errors"
	"fmt"
	"strings"
)

// AuthError means a bearer token could not be obtained. It is fatal
// for the calling operation and never retried internally.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("auth failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("auth failed: %s", e.Message)
}

// APIError is a non-success API response, surfaced after retries are
// exhausted or immediately for non-transient statuses.
type APIError struct {
	Status    int
	Path      string
	Body      string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api error %d for %s: %s | requestId=%s", e.Status, e.Path, e.Body, e.RequestID)
	}
	return fmt.Sprintf("api error %d for %s: %s", e.Status, e.Path, e.Body)
}

// QuotaExceededError signals the per-account request quota was hit.
// It is distinct from APIError because callers use it to stop a whole
// batch, not just the current request.
type QuotaExceededError struct {
	Path string
	Body string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s", e.Path, e.Body)
}

// NetworkError wraps a transport-level failure (timeout, connection
// reset). Retried under the same policy as transient API errors.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsQuotaExceeded reports whether err is, or wraps, a quota signal.
func IsQuotaExceeded(err error) bool {
	var quota *QuotaExceededError
	return errors.As(err, &quota)
}

// IsNotFound reports whether err is a 404 or a NOT_FOUND error body,
// which identifier searches treat as "try the next identifier type".
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == 404 || strings.Contains(apiErr.Body, "NOT_FOUND")
}

// The quota marker spelling varies across API versions, so detection
// is centralized here instead of re-derived per call site.
var quotaMarkers = []string{"QuotaExceeded", "QUOTAEXCEEDED"}

func bodySignalsQuota(body string) bool {
	for _, marker := range quotaMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
