package service

import (
	"context"
	"time"

	"github.com/okian/tagcaption/internal/domain/failure"
	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/internal/domain/types"
	"github.com/okian/tagcaption/pkg/logger"
)

const (
	timeLayout      = "2006-01-02 15:04:05"
	msgInvalidLimit = "Invalid limit requested (supported are positive values)"
)

// GetLeaderboard returns the valid, active and invalid lists of subtask.
// Input is validated before the store is touched.
func (s *Service) GetLeaderboard(ctx context.Context, subtask, sort string, limit int) (types.Leaderboard, error) {
	const op, title = "get_leaderboard", "Getting leaderboard failed"
	fields := []logger.Field{
		logger.String("subtask", subtask),
		logger.String("sort", sort),
		logger.Int("limit", limit),
	}

	s.mu.RLock()
	maxLimit, loc := s.maxLeaderboardLimit, s.location
	s.mu.RUnlock()

	st, ok := model.ParseSubtask(subtask)
	if !ok {
		return types.Leaderboard{}, s.fail(ctx, failure.Validation(op, title, msgInvalidSubtask), fields...)
	}
	if limit <= 0 {
		return types.Leaderboard{}, s.fail(ctx, failure.Validation(op, title, msgInvalidLimit), fields...)
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	dir, ok := model.ParseSort(sort)
	if !ok {
		return types.Leaderboard{}, s.fail(ctx, failure.Validation(op, title, `Invalid sort requested (supported are "ASC" and "DESC")`), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Leaderboard{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	lb, err := store.Leaderboard(ctx, model.LeaderboardQuery{Subtask: st, Sort: dir, Limit: limit})
	if err != nil {
		return types.Leaderboard{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}

	s.succeed(ctx, op, "got leaderboard", append(fields,
		logger.Int("valid", len(lb.Valid)),
		logger.Int("active", len(lb.Active)),
		logger.Int("invalid", len(lb.Invalid)))...)
	return types.Leaderboard{
		Reply:   types.Reply{Title: "Getting leaderboard succeeded"},
		Valid:   toEntries(lb.Valid, loc, true),
		Active:  toEntries(lb.Active, loc, false),
		Invalid: toEntries(lb.Invalid, loc, false),
	}, nil
}

// toEntries converts standings to reply rows. Scores are only exposed for
// validated runs.
func toEntries(standings []model.Standing, loc *time.Location, withScores bool) []types.Entry {
	out := make([]types.Entry, len(standings))
	for i, st := range standings {
		out[i] = types.Entry{
			Verified:  st.Verified,
			Name:      st.Name,
			Timestamp: st.Timestamp,
			Time:      time.UnixMilli(st.Timestamp).In(loc).Format(timeLayout),
			State:     st.State,
			Comment:   st.Comment,
		}
		if withScores {
			out[i].Score1, out[i].Score2, out[i].Score3 = st.Score1, st.Score2, st.Score3
		}
	}
	return out
}
