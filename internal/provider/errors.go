package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure for the retry engine.
type Kind int

// Failure kinds
const (
	// KindRetryable covers transient failures: network errors, timeouts,
	// throttling, and provider-side 5xx responses.
	KindRetryable Kind = iota

	// KindFatal covers failures that will not improve with another attempt
	// of the same unit: validation rejections and safety blocks. The unit
	// fails; the execution continues.
	KindFatal

	// KindAuth covers credential failures. Retrying other units with the
	// same credentials is pointless, so the whole execution fails.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindFatal:
		return "fatal"
	case KindAuth:
		return "auth"
	default:
		return "retryable"
	}
}

// Common provider failures
var (
	// ErrSafetyRejected means the provider's content filter blocked the
	// prompt or the generated image.
	ErrSafetyRejected = errors.New("content rejected by provider safety filter")

	// ErrJobNotFound means the provider no longer knows the submitted job.
	ErrJobNotFound = errors.New("provider job not found")
)

// Error is a classified provider failure.
type Error struct {
	Provider   string
	Operation  string
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: %s (status %d, %s)", e.Provider, e.Operation, msg, e.StatusCode, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s (%s)", e.Provider, e.Operation, msg, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified provider error.
func NewError(providerName, operation string, kind Kind, err error) *Error {
	return &Error{Provider: providerName, Operation: operation, Kind: kind, Err: err}
}

// KindOf extracts the failure kind from err. Errors outside the taxonomy
// default to retryable, matching the treatment of raw network failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, ErrSafetyRejected) {
		return KindFatal
	}
	return KindRetryable
}

// IsRetryable reports whether another attempt of the same unit may succeed.
// Context cancellation is never retryable: the caller is shutting the
// attempt down on purpose.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return KindOf(err) == KindRetryable
}

// IsAuth reports whether err is a credential failure that should fail the
// whole execution.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

// ClassifyStatus maps an HTTP response status to a failure kind.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusTooManyRequests:
		return KindRetryable
	case status == http.StatusRequestTimeout:
		return KindRetryable
	case status >= 500:
		return KindRetryable
	case status >= 400:
		return KindFatal
	default:
		return KindRetryable
	}
}
