package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrConflict       = errors.New("record conflicts with an existing one")
	ErrTokenExhausted = errors.New("could not generate a unique token")
	ErrNotConfigured  = errors.New("storage is not configured")
)
