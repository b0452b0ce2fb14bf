package scheduler

import (
	"time"

	"github.com/okian/tagcaption/pkg/logger"
)

// Option applies a configuration option to the Sweeper.
type Option func(*Sweeper)

// WithInterval sets how often the sweep runs.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention sets how long pending or errored runs survive after their
// last modification.
func WithRetention(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithLogger sets a custom logger for the sweeper and its scheduler.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now when computing the cutoff.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStopTimeout bounds how long Stop lets an in-flight tick run before
// canceling its context.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}
