package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
)

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// LastLiveTimestamp returns the newest timestamp of a processing or valid
// run, or 0 when the user has none for subtask.
func (s *SQLiteStore) LastLiveTimestamp(ctx context.Context, token string, subtask model.Subtask) (last int64, err error) {
	defer func(start time.Time) { observe("last_live_timestamp", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return 0, err
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(timestamp), 0) FROM runs WHERE token = ? AND subtask = ? AND state IN (?, ?)`,
		token, string(subtask), model.StateProcessing, model.StateValid,
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("last timestamp: %w", err)
	}
	return last, nil
}

// AddRun drops the pending or errored run of (token, subtask), if any, and
// inserts a fresh processing run.
func (s *SQLiteStore) AddRun(ctx context.Context, token string, timestamp int64, subtask model.Subtask, comment string) (err error) {
	defer func(start time.Time) { observe("add_run", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return err
	}

	now := toMillis(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM runs WHERE token = ? AND subtask = ? AND state <= ?`,
			token, string(subtask), model.StateProcessing,
		); err != nil {
			return fmt.Errorf("drop pending runs: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (token, timestamp, state, subtask, score1, score2, score3, comment, lastmodified)
			 VALUES (?, ?, ?, ?, NULL, NULL, NULL, ?, ?)`,
			token, timestamp, model.StateProcessing, string(subtask), comment, now,
		); err != nil {
			if isForeignKeyViolation(err) {
				return ErrNotFound
			}
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
}

// UpdateRun records the scorer's verdict on the run matching token,
// timestamp and subtask.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run model.Run) (err error) {
	defer func(start time.Time) { observe("update_run", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, score1 = ?, score2 = ?, score3 = ?, comment = ?, lastmodified = ?
		 WHERE token = ? AND timestamp = ? AND subtask = ?`,
		run.State, nullFloat(run.Score1), nullFloat(run.Score2), nullFloat(run.Score3), run.Comment,
		toMillis(s.now()), run.Token, run.Timestamp, string(run.Subtask),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRun removes every run of token submitted at timestamp.
func (s *SQLiteStore) DeleteRun(ctx context.Context, token string, timestamp int64) (err error) {
	defer func(start time.Time) { observe("delete_run", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE token = ? AND timestamp = ?`, token, timestamp)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStaleRuns removes pending or errored runs not touched since cutoff.
func (s *SQLiteStore) DeleteStaleRuns(ctx context.Context, cutoff time.Time) (n int64, err error) {
	defer func(start time.Time) { observe("delete_stale_runs", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE lastmodified <= ? AND state <= ?`,
		toMillis(cutoff), model.StateProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale runs: %w", err)
	}
	return affected(res)
}
