package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
)

// validQuery picks, per user, the run with the extremal score1 and ranks
// those runs. Null scores sort last in both directions; ties go to the
// earlier submission, then the name.
const validQuery = `
SELECT u.verified, u.name, r.timestamp, r.state, r.score1, r.score2, r.score3, r.comment
FROM (
	SELECT token, timestamp, state, score1, score2, score3, comment,
		ROW_NUMBER() OVER (
			PARTITION BY token
			ORDER BY score1 IS NULL, score1 %[1]s, timestamp ASC
		) AS pick
	FROM runs
	WHERE subtask = ? AND state > 0
) AS r
JOIN users AS u ON u.token = r.token
WHERE r.pick = 1
ORDER BY r.score1 IS NULL, r.score1 %[1]s, r.timestamp ASC, u.name ASC
LIMIT ?`

// latestQuery picks the most recent run per user among runs whose state
// matches the condition substituted for %s.
const latestQuery = `
SELECT u.verified, u.name, r.timestamp, r.state, r.comment
FROM (
	SELECT token, timestamp, state, comment,
		ROW_NUMBER() OVER (PARTITION BY token ORDER BY timestamp DESC) AS pick
	FROM runs
	WHERE subtask = ? AND %s
) AS r
JOIN users AS u ON u.token = r.token
WHERE r.pick = 1
ORDER BY r.timestamp DESC, u.name ASC`

// Leaderboard computes the valid, active and invalid lists of a subtask.
func (s *SQLiteStore) Leaderboard(ctx context.Context, q model.LeaderboardQuery) (lb model.Leaderboard, err error) {
	defer func(start time.Time) { observe("leaderboard", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return model.Leaderboard{}, err
	}

	// Direction is interpolated, so only the two known constants pass.
	var dir string
	switch q.Sort {
	case model.SortAsc:
		dir = "ASC"
	case model.SortDesc:
		dir = "DESC"
	default:
		return model.Leaderboard{}, fmt.Errorf("leaderboard: unsupported sort %q", q.Sort)
	}

	if lb.Valid, err = s.validStandings(ctx, q.Subtask, dir, q.Limit); err != nil {
		return model.Leaderboard{}, err
	}
	if lb.Active, err = s.latestStandings(ctx, q.Subtask, "state = 0"); err != nil {
		return model.Leaderboard{}, err
	}
	if lb.Invalid, err = s.latestStandings(ctx, q.Subtask, "state < 0"); err != nil {
		return model.Leaderboard{}, err
	}
	return lb, nil
}

func (s *SQLiteStore) validStandings(ctx context.Context, subtask model.Subtask, dir string, limit int) ([]model.Standing, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(validQuery, dir), string(subtask), limit)
	if err != nil {
		return nil, fmt.Errorf("query valid runs: %w", err)
	}
	defer rows.Close()

	out := []model.Standing{}
	for rows.Next() {
		var (
			st                     model.Standing
			verified               int
			score1, score2, score3 sql.NullFloat64
		)
		if err := rows.Scan(&verified, &st.Name, &st.Timestamp, &st.State, &score1, &score2, &score3, &st.Comment); err != nil {
			return nil, fmt.Errorf("scan valid run: %w", err)
		}
		st.Verified = verified != 0
		st.Score1, st.Score2, st.Score3 = floatPtr(score1), floatPtr(score2), floatPtr(score3)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate valid runs: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) latestStandings(ctx context.Context, subtask model.Subtask, cond string) ([]model.Standing, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(latestQuery, cond), string(subtask))
	if err != nil {
		return nil, fmt.Errorf("query runs (%s): %w", cond, err)
	}
	defer rows.Close()

	out := []model.Standing{}
	for rows.Next() {
		var (
			st       model.Standing
			verified int
		)
		if err := rows.Scan(&verified, &st.Name, &st.Timestamp, &st.State, &st.Comment); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		st.Verified = verified != 0
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Snapshot lists every user with each of their runs. Users without runs
// appear once with a nil Run.
func (s *SQLiteStore) Snapshot(ctx context.Context) (entries []model.SnapshotEntry, err error) {
	defer func(start time.Time) { observe("snapshot", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT u.name, u.email, u.token,
	r.timestamp, r.state, r.subtask, r.score1, r.score2, r.score3, r.comment, r.lastmodified
FROM users AS u
LEFT JOIN runs AS r ON r.token = u.token
ORDER BY u.name ASC, r.timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                      model.SnapshotEntry
			timestamp, modified    sql.NullInt64
			state                  sql.NullInt64
			subtask, comment       sql.NullString
			score1, score2, score3 sql.NullFloat64
		)
		if err := rows.Scan(&e.Name, &e.Email, &e.Token,
			&timestamp, &state, &subtask, &score1, &score2, &score3, &comment, &modified,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if timestamp.Valid {
			e.Run = &model.Run{
				Token:        e.Token,
				Timestamp:    timestamp.Int64,
				State:        int(state.Int64),
				Subtask:      model.Subtask(subtask.String),
				Score1:       floatPtr(score1),
				Score2:       floatPtr(score2),
				Score3:       floatPtr(score3),
				Comment:      comment.String,
				LastModified: fromMillis(modified.Int64),
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot: %w", err)
	}
	return entries, nil
}
