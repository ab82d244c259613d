package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidArgument       ErrorKind = "InvalidArgument"
	KindNotFound              ErrorKind = "NotFound"
	KindConflict              ErrorKind = "Conflict"
	KindDependentWriteFailure ErrorKind = "DependentWriteFailure"
	KindStorageUnavailable    ErrorKind = "StorageUnavailable"
)

// Error is the single error type crossing the app boundary.
// UpdatedCount and Pending are only set for DependentWriteFailure.
type Error struct {
	Kind         ErrorKind
	Message      string
	Err          error
	UpdatedCount int
	Pending      []string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidArgument       = &Error{Kind: KindInvalidArgument}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrDependentWriteFailure = &Error{Kind: KindDependentWriteFailure}
	ErrStorageUnavailable    = &Error{Kind: KindStorageUnavailable}
)

func InvalidArgument(msg string) error { return &Error{Kind: KindInvalidArgument, Message: msg} }

func NotFound(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func Conflict(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

// Unavailable wraps a storage failure. Domain errors pass through untouched.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStorageUnavailable, Message: op, Err: err}
}

// KindOf reports the kind of err, defaulting to StorageUnavailable for foreign errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindStorageUnavailable
}
