package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures for the orchestrator's
// propagation policy: connection failures are fatal for the backend,
// the rest are recorded as failed operation samples.
type ErrorKind string

const (
	ErrConnection  ErrorKind = "connection"
	ErrTimeout     ErrorKind = "timeout"
	ErrMalformed   ErrorKind = "malformed-response"
	ErrUnsupported ErrorKind = "unsupported-operation"
)

// Error is the failure type returned by all Backend operations.
type Error struct {
	Kind    ErrorKind
	Backend string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %s", e.Backend, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Backend, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error without an underlying cause.
func NewError(kind ErrorKind, backend, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Backend: backend, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies err under the given kind, except that context
// deadline and cancellation errors always map to the timeout kind.
func WrapError(kind ErrorKind, backend, message string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Backend: backend, Message: message, Cause: err}
}

// KindOf returns the kind of err if it is (or wraps) a backend Error,
// and an empty kind otherwise.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
