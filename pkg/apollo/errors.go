package apollo

import (
	"fmt"
	"net/http"
)

// APIError is returned for any non-2xx provider response. It carries the
// status code and raw body so callers can log the exact failure, plus a
// templated user-facing message keyed off the status-code category.
type APIError struct {
	Op         string // "search" or "bulk_match"
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apollo: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// HTTPStatus implements resilience.StatusCoder.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// RateLimited reports whether the provider rejected the call for quota
// reasons. Distinguished for user messaging.
func (e *APIError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests
}

// UserMessage returns the operator-facing description of the failure. The
// raw body stays in logs only.
func (e *APIError) UserMessage() string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return "Apollo rate limit exceeded; wait a minute and re-run"
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "Apollo rejected the API key; check LEADFLOW_APOLLO_KEY"
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return "Apollo rejected the request parameters"
	case e.StatusCode >= 500:
		return "Apollo is temporarily unavailable; re-run to retry"
	default:
		return fmt.Sprintf("Apollo call failed with status %d", e.StatusCode)
	}
}
