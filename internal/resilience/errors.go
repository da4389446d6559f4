// Package resilience classifies provider failures and retries the transient
// ones with capped exponential backoff. The rate limiter stays a pure
// throttle; any retry discipline lives here.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// StatusCoder is implemented by typed provider errors that carry an HTTP
// status code (apollo.APIError).
type StatusCoder interface {
	HTTPStatus() int
}

// IsTransient reports whether the error is safe to retry: a provider 5xx or
// request timeout, or a network-level failure. Client errors (4xx, including
// 429) are never transient here — rate-limit pressure is the limiter's job
// and bad parameters will not improve on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code == 408 || code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
