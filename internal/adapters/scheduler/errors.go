package scheduler

import "errors"

var (
	// ErrAlreadyStarted is returned by Start on a running sweeper.
	ErrAlreadyStarted = errors.New("sweeper already started")
	// ErrNoStore is returned when the sweeper has nothing to sweep.
	ErrNoStore = errors.New("sweeper store is nil")
)
