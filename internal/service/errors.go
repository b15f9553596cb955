package service

import (
	"errors"
	"fmt"
)

// Kind classifies service failures.  The HTTP layer maps each kind to a
// status code; nothing else about an error is exposed to clients.
type Kind int

const (
	KindInternal Kind = iota
	KindConflict
	KindNotFound
	KindUnauthorized
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// Error is the typed error returned by every lifecycle service.  Message
// is safe to show to clients; Err keeps the cause for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Conflict(msg string) *Error     { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error     { return &Error{Kind: KindNotFound, Message: msg} }
func Unauthorized(msg string) *Error { return &Error{Kind: KindUnauthorized, Message: msg} }

// InvalidInput reports bad caller input; cause may be nil.
func InvalidInput(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg, Err: cause}
}

// Internal hides cause behind a generic message.
func Internal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: cause}
}

// KindOf returns the kind of err, KindInternal for errors that did not
// come from this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
