package repository

import "time"

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithClock replaces time.Now for lastmodified stamps and sweep cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTokenSource sets the generator used for new registrations.
func WithTokenSource(src TokenSource) Option {
	return func(s *SQLiteStore) {
		if src != nil {
			s.tokens = src
		}
	}
}

// WithTokenAttempts bounds how many tokens are drawn before giving up on a
// registration.
func WithTokenAttempts(n int) Option {
	return func(s *SQLiteStore) {
		if n > 0 {
			s.tokenAttempts = n
		}
	}
}
