// Package repository persists users and runs.
package repository

import (
	"context"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
)

// TokenSource produces candidate user tokens.
type TokenSource interface {
	New() (string, error)
}

// Store provides read/write access to users and runs.
type Store interface {
	// CreateUser registers u and returns its freshly generated token.
	// Returns ErrConflict if the name is taken case-insensitively.
	CreateUser(ctx context.Context, u model.User) (string, error)
	// UpdateUser changes name and email of the user owning token.
	// Returns ErrConflict on a name collision with another user and
	// ErrNotFound if no user owns token.
	UpdateUser(ctx context.Context, token, name, email string) error
	// DeleteUser removes the user matching all three fields, with their runs.
	DeleteUser(ctx context.Context, token, name, email string) error
	// TokenExists reports whether a user owns token.
	TokenExists(ctx context.Context, token string) (bool, error)
	// GetUser returns the user owning token or ErrNotFound.
	GetUser(ctx context.Context, token string) (model.User, error)

	// LastLiveTimestamp returns the newest timestamp among the user's runs
	// for subtask whose state is processing or the first valid state, or 0.
	LastLiveTimestamp(ctx context.Context, token string, subtask model.Subtask) (int64, error)
	// AddRun replaces any pending or errored run for (token, subtask) with a
	// new processing run.
	AddRun(ctx context.Context, token string, timestamp int64, subtask model.Subtask, comment string) error
	// UpdateRun sets the outcome of the run matching token, timestamp and subtask.
	UpdateRun(ctx context.Context, run model.Run) error
	// DeleteRun removes the run matching token and timestamp.
	DeleteRun(ctx context.Context, token string, timestamp int64) error

	// Leaderboard computes the three per-user lists for q.
	Leaderboard(ctx context.Context, q model.LeaderboardQuery) (model.Leaderboard, error)

	// DeleteStaleRuns removes pending or errored runs last modified at or
	// before cutoff and returns how many were removed.
	DeleteStaleRuns(ctx context.Context, cutoff time.Time) (int64, error)
	// Snapshot lists every user joined with their runs, by name then recency.
	Snapshot(ctx context.Context) ([]model.SnapshotEntry, error)

	Close() error
}
