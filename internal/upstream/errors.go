package upstream

import (
	"errors"
	"fmt"
	"net/http"
)

// Failure categories of an upstream call. Match with errors.Is.
var (
	ErrRateLimited       = errors.New("upstream rate limited")
	ErrUnauthorized      = errors.New("upstream rejected credentials")
	ErrMalformedResponse = errors.New("upstream response missing reply content")
	ErrUnknown           = errors.New("upstream call failed")
)

// Error is a classified upstream failure.
// Detail holds the raw provider message and is only meant for diagnostics.
type Error struct {
	Kind       error
	StatusCode int
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the category and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Category returns a short stable name for the failure kind.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return "unknown"
	}
}

// classifyStatus maps an HTTP status from the provider to a failure kind.
// Returns nil for success statuses.
func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusPaymentRequired:
		return ErrUnauthorized
	default:
		return ErrUnknown
	}
}
