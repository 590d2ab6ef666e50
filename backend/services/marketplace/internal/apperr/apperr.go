// Package apperr holds the error taxonomy shared by the marketplace components.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks rejected input or a request the current state does not allow.
	ErrValidation = errors.New("validation failed")
	// ErrAuth marks a request without a resolvable acting user.
	ErrAuth = errors.New("authentication required")
	// ErrForbidden marks an authenticated actor acting outside their capacity.
	ErrForbidden = fmt.Errorf("forbidden: %w", ErrAuth)
	// ErrNotFound marks a charger, user or booking id that does not resolve.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks a network or backend failure worth a manual retry.
	ErrTransient = errors.New("backend unavailable")
)

const transientMessage = "service temporarily unavailable, please retry"

// Error pairs a taxonomy sentinel with a user-facing message and an optional cause.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// New returns an error of the given kind.
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap returns an error of the given kind that keeps cause in the chain.
func Wrap(kind error, msg string, cause error) error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Validation reports rejected input.
func Validation(msg string) error {
	return New(ErrValidation, msg)
}

// Validationf formats a validation message.
func Validationf(format string, args ...any) error {
	return New(ErrValidation, fmt.Sprintf(format, args...))
}

// Unauthenticated reports a missing actor.
func Unauthenticated(msg string) error {
	return New(ErrAuth, msg)
}

// Forbidden reports an actor without authority over the resource.
func Forbidden(msg string) error {
	return New(ErrForbidden, msg)
}

// NotFound reports an unresolvable id.
func NotFound(kind, id string) error {
	return New(ErrNotFound, fmt.Sprintf("%s %q not found", kind, id))
}

// Transient wraps a backend failure for op.
func Transient(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTransient) {
		return cause
	}
	return &Error{Kind: ErrTransient, Msg: transientMessage, Err: fmt.Errorf("%s: %w", op, cause)}
}

// Message returns the text that is safe to show to an end user.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrAuth):
		return "authentication required"
	case errors.Is(err, ErrValidation):
		return "invalid request"
	case errors.Is(err, ErrTransient):
		return transientMessage
	}
	return "internal error"
}
