package chat

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for the transport layer.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindCapacity    Kind = "capacity"
	KindPersistence Kind = "persistence"
)

// Error is returned by every service operation that fails. Message is safe to show to
// the caller; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindPersistence {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, chat.ErrCapacity) works on any
// capacity failure regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation  = &Error{Kind: KindValidation}
	ErrAuth        = &Error{Kind: KindAuth}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrCapacity    = &Error{Kind: KindCapacity}
	ErrPersistence = &Error{Kind: KindPersistence}
)

// Auth failures come in two flavors that answer differently over HTTP.
var (
	ErrWrongPassword = errors.New("invalid password")
	ErrNotMember     = errors.New("not a participant of this room")
)

// KindOf returns the kind of a service error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// invalidUser reports an identity that cannot be stored, in the identity's own words.
func invalidUser(err error) error {
	return &Error{Kind: KindValidation, Message: err.Error(), Err: err}
}

func authError(message string, cause error) error {
	return &Error{Kind: KindAuth, Message: message, Err: cause}
}

func notFoundError(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

func capacityError(message string) error {
	return &Error{Kind: KindCapacity, Message: message}
}

func persistenceError(message string, cause error) error {
	return &Error{Kind: KindPersistence, Message: message, Err: cause}
}
