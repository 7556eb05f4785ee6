// Package ieerr defines the error kinds shared across the store, so callers
// can branch on category instead of matching message text.
package ieerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error without mandating a specific message shape.
type Kind int

const (
	// KindUnknown is the zero value; never returned deliberately.
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindValidation
	KindIntegrity
	KindTransport
	KindProtocol
	KindResourceExhausted
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation"
	case KindIntegrity:
		return "Integrity"
	case KindTransport:
		return "Transport"
	case KindProtocol:
		return "ProtocolError"
	case KindResourceExhausted:
		return "ResourceExhausted"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every package in this module.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func NotFound(format string, args ...any) *Error           { return New(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error           { return New(KindConflict, format, args...) }
func Validation(format string, args ...any) *Error         { return New(KindValidation, format, args...) }
func Integrity(format string, args ...any) *Error          { return New(KindIntegrity, format, args...) }
func Transport(cause error, format string, args ...any) *Error {
	return Wrap(KindTransport, cause, format, args...)
}
func Protocol(format string, args ...any) *Error { return New(KindProtocol, format, args...) }
func ResourceExhausted(format string, args ...any) *Error {
	return New(KindResourceExhausted, format, args...)
}
