// Package apierr defines the error taxonomy shared by the session store, the
// remote data gateway, the cache and the mutation coordinator.
//
// Expected failures travel as *Error values. Callers branch on the Kind with
// errors.Is against the sentinel kinds:
//
//	if errors.Is(err, apierr.ErrNotFound) { ... }
//
// UserCancelled is not a failure: IsCancelled lets UI code skip the error toast.
package apierr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind string

// Error kinds.
const (
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUserCancelled      Kind = "user_cancelled"
	KindProviderError      Kind = "provider_error"
	KindNotFound           Kind = "not_found"
	KindNetwork            Kind = "network_error"
	KindTimeout            Kind = "timeout"
	KindValidation         Kind = "validation_error"
	KindInternal           Kind = "internal"
)

// Error implements error for a Kind so the kinds can be used as errors.Is targets.
func (k Kind) Error() string { return string(k) }

// Sentinel kinds for errors.Is.
const (
	ErrUnauthenticated    = KindUnauthenticated
	ErrInvalidCredentials = KindInvalidCredentials
	ErrUserCancelled      = KindUserCancelled
	ErrProviderError      = KindProviderError
	ErrNotFound           = KindNotFound
	ErrNetwork            = KindNetwork
	ErrTimeout            = KindTimeout
	ErrValidation         = KindValidation
	ErrInternal           = KindInternal
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

// New returns an *Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf returns an *Error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Op != "" && msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel kinds.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindNetwork
	}
	return KindInternal
}

// IsCancelled reports whether err is a user cancellation rather than a failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrUserCancelled)
}

// IsTransient reports whether a manual retry may succeed.
func IsTransient(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindTimeout
}

// FromCode maps a backend wire error code to a Kind.
func FromCode(code string) Kind {
	switch Kind(code) {
	case KindUnauthenticated, KindInvalidCredentials, KindUserCancelled, KindProviderError,
		KindNotFound, KindNetwork, KindTimeout, KindValidation:
		return Kind(code)
	}
	return KindInternal
}
