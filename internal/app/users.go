package service

import (
	"context"
	"fmt"

	"github.com/okian/tagcaption/internal/domain/failure"
	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/internal/domain/types"
	"github.com/okian/tagcaption/internal/domain/validation"
	"github.com/okian/tagcaption/pkg/logger"
)

const (
	msgInvalidName     = "Name has an invalid format."
	msgInvalidEmail    = "Email address has an invalid format."
	msgNameTaken       = "Name is already registered."
	msgNoUserDetails   = "No user found with specified details."
	msgNoUserWithToken = "No user found with specified token."
)

// AddUser registers name and email and returns the new token.
func (s *Service) AddUser(ctx context.Context, name, email string) (types.Registration, error) {
	const op, title = "add_user", "Adding user failed"
	fields := []logger.Field{logger.String("name", name), logger.String("email", email)}

	if !validation.NewName(name) {
		return types.Registration{}, s.fail(ctx, failure.Validation(op, title, msgInvalidName), fields...)
	}
	if !validation.Email(email) {
		return types.Registration{}, s.fail(ctx, failure.Validation(op, title, msgInvalidEmail), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Registration{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}

	s.mu.RLock()
	verified := s.operatorEmail != "" && email == s.operatorEmail
	s.mu.RUnlock()

	token, err := store.CreateUser(ctx, model.User{Name: name, Email: email, Verified: verified})
	if err != nil {
		return types.Registration{}, s.fail(ctx, storeFailure(op, title, err, "", msgNameTaken), fields...)
	}

	s.succeed(ctx, op, "added user", append(fields, logger.String("token", token), logger.Bool("verified", verified))...)
	return types.Registration{
		Reply: types.Reply{
			Title:   "Adding user succeeded",
			Message: fmt.Sprintf("Your token is %q. Please make sure to write it down.", token),
		},
		Token: token,
	}, nil
}

// UpdateUser changes the name and email registered under token.
func (s *Service) UpdateUser(ctx context.Context, name, email, token string) (types.Reply, error) {
	const op, title = "update_user", "Updating user failed"
	fields := []logger.Field{logger.String("name", name), logger.String("email", email), logger.String("token", token)}

	if !validation.UpdatedName(name) {
		return types.Reply{}, s.fail(ctx, failure.Validation(op, title, msgInvalidName), fields...)
	}
	if !validation.Email(email) {
		return types.Reply{}, s.fail(ctx, failure.Validation(op, title, msgInvalidEmail), fields...)
	}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	if err := store.UpdateUser(ctx, token, name, email); err != nil {
		return types.Reply{}, s.fail(ctx, storeFailure(op, title, err, msgNoUserDetails, msgNameTaken), fields...)
	}

	s.succeed(ctx, op, "updated user", fields...)
	return types.Reply{Title: "Updating user succeeded", Message: "Your registration has been updated."}, nil
}

// RemoveUser deletes the registration matching all three fields together
// with its runs. Name and email compare case-insensitively.
func (s *Service) RemoveUser(ctx context.Context, name, email, token string) (types.Reply, error) {
	const op, title = "remove_user", "Removing user failed"
	fields := []logger.Field{logger.String("name", name), logger.String("email", email), logger.String("token", token)}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	if err := store.DeleteUser(ctx, token, name, email); err != nil {
		return types.Reply{}, s.fail(ctx, storeFailure(op, title, err, msgNoUserDetails, ""), fields...)
	}

	s.succeed(ctx, op, "removed user", fields...)
	return types.Reply{Title: "Removing user succeeded", Message: "Your registration has been removed."}, nil
}

// ExistsToken succeeds when a user owns token.
func (s *Service) ExistsToken(ctx context.Context, token string) (types.Reply, error) {
	const op, title = "exists_token", "Token check failed"
	fields := []logger.Field{logger.String("token", token)}

	store, err := s.currentStore()
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	ok, err := store.TokenExists(ctx, token)
	if err != nil {
		return types.Reply{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	if !ok {
		return types.Reply{}, s.fail(ctx, failure.NotFound(op, title, msgNoUserWithToken), fields...)
	}

	s.succeed(ctx, op, "token found", fields...)
	return types.Reply{Title: "Token check succeeded", Message: "Your registration was found."}, nil
}

// GetUser returns the name and email registered under token.
func (s *Service) GetUser(ctx context.Context, token string) (types.UserDetails, error) {
	const op, title = "get_user", "Getting user details failed"
	fields := []logger.Field{logger.String("token", token)}

	store, err := s.currentStore()
	if err != nil {
		return types.UserDetails{}, s.fail(ctx, failure.Storage(op, title, err), fields...)
	}
	u, err := store.GetUser(ctx, token)
	if err != nil {
		return types.UserDetails{}, s.fail(ctx, storeFailure(op, title, err, msgNoUserWithToken, ""), fields...)
	}

	s.succeed(ctx, op, "got user", append(fields, logger.String("name", u.Name))...)
	return types.UserDetails{
		Reply: types.Reply{
			Title: "Getting user details succeeded",
			Message: fmt.Sprintf("The user %s with email address %s is associated with token %s.",
				u.Name, u.Email, token),
		},
		Name:  u.Name,
		Email: u.Email,
	}, nil
}
