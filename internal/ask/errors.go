package ask

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrRateLimited         = errors.New("rate_limited")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
)

// RateLimitError is returned when the upstream answers 429.
type RateLimitError struct {
	Message string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit: upstream returned 429"
	}
	return fmt.Sprintf("rate limit: %s", e.Message)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// HTTPError represents a non-2xx answer from the upstream.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error: %d", e.StatusCode)
	}
	return e.Message
}

// ValidationError represents a request rejected before it reaches the upstream.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsTransient reports whether a retry may succeed. Rate limiting is not transient here:
// it is surfaced to the caller as is.
func IsTransient(err error) bool {
	if err == nil || IsRateLimited(err) || IsFatal(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "eof")
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}
