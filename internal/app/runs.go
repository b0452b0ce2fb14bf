package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/tagcaption/internal/domain/failure"
	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/internal/domain/ratelimit"
	"github.com/okian/tagcaption/internal/domain/types"
	"github.com/okian/tagcaption/pkg/logger"
)

const (
	msgInvalidSubtask = `Invalid subtask requested (supported are "tag" and "caption")`
	msgNoRun          = "No run found with specified details."
)

// CheckTimestamp refuses a submission whose timestamp is closer than the
// upload delay to the user's last live run for subtask.
func (s *Service) CheckTimestamp(ctx context.Context, token string, timestamp int64, subtask string) (types.Reply, error) {
	const op, title = "check_timestamp", "Timestamp check failed"
	fields := []logger.Field{
		logger.String("token", token),
		logger.Int64("timestamp", timestamp),
		logger.String("subtask", subtask),
	}

	st, ok := model.ParseSubtask(subtask)
	if !ok {
		return types.Reply{}, s.fail(ctx, failure.Validation(op, title, msgInvalidSubtask), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	last, err := store.LastLiveTimestamp(ctx, token, st)
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	fields = append(fields, logger.Int64("last", last))

	s.mu.RLock()
	window := s.uploadDelay
	s.mu.RUnlock()

	if wait := ratelimit.Check(timestamp, last, window); wait > 0 {
		minutes := strconv.FormatFloat(window.Minutes(), 'f', -1, 64)
		msg := fmt.Sprintf("You have to wait at least %s minutes between successive submissions.", minutes)
		return types.Reply{}, s.fail(ctx, failure.RateLimited(op, title, msg, wait),
			append(fields, logger.Duration("wait", wait))...)
	}

	s.succeed(ctx, op, "checked timestamp", fields...)
	return types.Reply{Title: "Timestamp check succeeded", Message: "You may submit a run."}, nil
}

// AddRun records a new processing run, replacing the user's pending or
// errored run for the same subtask.
func (s *Service) AddRun(ctx context.Context, token string, timestamp int64, subtask, comment string) (types.Reply, error) {
	const op, title = "add_run", "Adding run failed"
	fields := []logger.Field{
		logger.String("token", token),
		logger.Int64("timestamp", timestamp),
		logger.String("subtask", subtask),
		logger.String("comment", comment),
	}

	st, ok := model.ParseSubtask(subtask)
	if !ok {
		return types.Reply{}, s.fail(ctx, failure.Validation(op, title, msgInvalidSubtask), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	if err := store.AddRun(ctx, token, timestamp, st, comment); err != nil {
		return types.Reply{}, s.fail(ctx, storeFailure(op, title, err, msgNoUserWithToken, ""), fields...)
	}

	s.succeed(ctx, op, "added run", append(fields, logger.Int("state", model.StateProcessing))...)
	return types.Reply{Title: "Adding run succeeded", Message: "Your run has been added."}, nil
}

// UpdateRun stores the scorer's verdict on an existing run.
func (s *Service) UpdateRun(ctx context.Context, u types.RunUpdate) (types.Reply, error) {
	const op, title = "update_run", "Updating run failed"
	fields := []logger.Field{
		logger.String("token", u.Token),
		logger.Int64("timestamp", u.Timestamp),
		logger.Int("state", u.State),
		logger.String("subtask", u.Subtask),
		logger.OptionalFloat64("score1", u.Score1),
		logger.OptionalFloat64("score2", u.Score2),
		logger.OptionalFloat64("score3", u.Score3),
		logger.String("comment", u.Comment),
	}

	st, ok := model.ParseSubtask(u.Subtask)
	if !ok {
		return types.Reply{}, s.fail(ctx, failure.Validation(op, title, msgInvalidSubtask), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	err = store.UpdateRun(ctx, model.Run{
		Token:     u.Token,
		Timestamp: u.Timestamp,
		State:     u.State,
		Subtask:   st,
		Score1:    u.Score1,
		Score2:    u.Score2,
		Score3:    u.Score3,
		Comment:   u.Comment,
	})
	if err != nil {
		return types.Reply{}, s.fail(ctx, storeFailure(op, title, err, msgNoRun, ""), fields...)
	}

	s.succeed(ctx, op, "updated run", fields...)
	return types.Reply{Title: "Updating run succeeded", Message: "Your run was updated."}, nil
}

// RemoveRun deletes the user's run submitted at timestamp.
func (s *Service) RemoveRun(ctx context.Context, token string, timestamp int64) (types.Reply, error) {
	const op, title = "remove_run", "Removing run failed"
	fields := []logger.Field{logger.String("token", token), logger.Int64("timestamp", timestamp)}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	if err := store.DeleteRun(ctx, token, timestamp); err != nil {
		return types.Reply{}, s.fail(ctx, storeFailure(op, title, err, msgNoRun, ""), fields...)
	}

	s.succeed(ctx, op, "removed run", fields...)
	return types.Reply{Title: "Removing run succeeded", Message: "Your run has been removed."}, nil
}
