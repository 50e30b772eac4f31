package upstream

import (
	"errors"
	"fmt"
)

// Common errors returned by the fetcher.
var (
	// ErrTransport matches any transport-class *Error via errors.Is.
	ErrTransport = errors.New("upstream transport error")

	// ErrDomain matches any *Error where the upstream reported success=false.
	ErrDomain = errors.New("upstream domain error")

	// ErrValidation matches any *Error caused by a malformed envelope.
	ErrValidation = errors.New("upstream validation error")

	// ErrRetryExhausted is wrapped by transport errors once all attempts failed.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled while waiting.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorKind classifies a failed upstream request.
type ErrorKind string

const (
	// KindTransport covers timeouts, connection failures and non-2xx statuses.
	KindTransport ErrorKind = "transport"

	// KindDomain means the upstream answered with success=false.
	KindDomain ErrorKind = "domain"

	// KindValidation means the envelope could not be decoded or validated.
	KindValidation ErrorKind = "validation"
)

// Error is the error record attached to a failed request.
type Error struct {
	Kind    ErrorKind
	Message string
	URL     string

	// Code is the upstream errorCode, set only for domain errors that carry one.
	Code *int

	// StatusCode is the last HTTP status seen, 0 if no response was received.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("upstream %s error: %s (url %s)", e.Kind, e.Message, e.URL)
	if e.Code != nil {
		msg = fmt.Sprintf("upstream %s error %d: %s (url %s)", e.Kind, *e.Code, e.Message, e.URL)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrDomain:
		return e.Kind == KindDomain
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}

// HasCode reports whether err is a domain error carrying one of codes.
func HasCode(err error, codes ...int) bool {
	var upErr *Error
	if !errors.As(err, &upErr) || upErr.Kind != KindDomain || upErr.Code == nil {
		return false
	}
	for _, c := range codes {
		if *upErr.Code == c {
			return true
		}
	}
	return false
}

// shouldRetry determines if an error kind is worth another attempt.
func shouldRetry(kind ErrorKind) bool {
	switch kind {
	case KindTransport:
		return true
	case KindDomain:
		// business rejection, will not change on retry
		return false
	case KindValidation:
		return false
	default:
		return false
	}
}
