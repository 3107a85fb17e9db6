package llm

import (
	"errors"
	"fmt"
	"time"
)

// APIError is a provider error carrying enough detail for the engine's
// retry taxonomy.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	RetryAfter time.Duration // zero when the provider gave no hint
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm api error [%d]: %s (type: %s)", e.StatusCode, e.Message, e.Type)
	}
	return fmt.Sprintf("llm api error [%d]: %s", e.StatusCode, e.Message)
}

// IsAuthError reports whether err is a credential failure (401/403).
func IsAuthError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 401 || apiErr.StatusCode == 403
	}
	return false
}

// IsRateLimitError reports whether err is a rate-limit rejection (429).
func IsRateLimitError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// IsTransient reports whether err is worth retrying with backoff.
func IsTransient(err error) bool {
	return IsAuthError(err) || IsRateLimitError(err)
}

// RetryAfterHint extracts a provider-given retry delay, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}
	return 0, false
}
