// Package failure defines the error taxonomy returned by every public
// operation. Each error carries a user-facing title and message; the
// transport layer decides how to render them.
package failure

import (
	"errors"
	"time"
)

// Sentinel kinds. Match them with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrStorage     = errors.New("storage failure")
)

// Error is a typed operation failure.
type Error struct {
	Kind    error
	Op      string
	Title   string
	Message string
	// Wait is the remaining time before another attempt; set for ErrRateLimited.
	Wait time.Duration
	Err  error
}

func (e *Error) Error() string {
	msg := e.Title + ": " + e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind so callers can use errors.Is(err, ErrNotFound).
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Validation builds an ErrValidation failure.
func Validation(op, title, message string) *Error {
	return &Error{Kind: ErrValidation, Op: op, Title: title, Message: message}
}

// Conflict builds an ErrConflict failure.
func Conflict(op, title, message string) *Error {
	return &Error{Kind: ErrConflict, Op: op, Title: title, Message: message}
}

// NotFound builds an ErrNotFound failure.
func NotFound(op, title, message string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Title: title, Message: message}
}

// RateLimited builds an ErrRateLimited failure carrying the remaining wait.
func RateLimited(op, title, message string, wait time.Duration) *Error {
	return &Error{Kind: ErrRateLimited, Op: op, Title: title, Message: message, Wait: wait}
}

// Storage builds an ErrStorage failure wrapping the engine error.
func Storage(op, title string, err error) *Error {
	return &Error{Kind: ErrStorage, Op: op, Title: title, Message: "Could not access database.", Err: err}
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
