// Package api exposes the user, run and leaderboard operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/tagcaption/internal/domain/failure"
	"github.com/okian/tagcaption/internal/domain/types"
	"github.com/okian/tagcaption/pkg/logger"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// UserDependencies are the registration operations.
type UserDependencies interface {
	AddUser(ctx context.Context, name, email string) (types.Registration, error)
	UpdateUser(ctx context.Context, name, email, token string) (types.Reply, error)
	RemoveUser(ctx context.Context, name, email, token string) (types.Reply, error)
	ExistsToken(ctx context.Context, token string) (types.Reply, error)
	GetUser(ctx context.Context, token string) (types.UserDetails, error)
}

// RunDependencies are the submission operations.
type RunDependencies interface {
	CheckTimestamp(ctx context.Context, token string, timestamp int64, subtask string) (types.Reply, error)
	AddRun(ctx context.Context, token string, timestamp int64, subtask, comment string) (types.Reply, error)
	UpdateRun(ctx context.Context, u types.RunUpdate) (types.Reply, error)
	RemoveRun(ctx context.Context, token string, timestamp int64) (types.Reply, error)
}

// LeaderboardDependencies is the ranking read.
type LeaderboardDependencies interface {
	GetLeaderboard(ctx context.Context, subtask, sort string, limit int) (types.Leaderboard, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	UserDependencies
	RunDependencies
	LeaderboardDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	usersHandler       *UsersHandler
	runsHandler        *RunsHandler
	leaderboardHandler *LeaderboardHandler

	logger logger.Logger
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithLogger sets the logger used for request logs.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		usersHandler:       NewUsersHandler(deps),
		runsHandler:        NewRunsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("http")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(LoggingMiddleware(s.logger, MetricsMiddleware(h, endpoint))))
	}
	route("/healthz", "healthz", s.healthHandler.HandleHealth)
	route("/stats", "stats", s.statsHandler.HandleStats)
	route("/users", "users", s.usersHandler.HandleUsers)
	route("/users/", "user", s.usersHandler.HandleUserByToken)
	route("/runs", "runs", s.runsHandler.HandleRuns)
	route("/leaderboard", "leaderboard", s.leaderboardHandler.HandleGetLeaderboard)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a failure kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, failure.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, failure.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, failure.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, failure.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an operation failure as a title and message. Errors
// outside the failure taxonomy never leak their text.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	fe, ok := failure.As(err)
	if !ok {
		writeJSON(w, status, types.Reply{Title: "Request failed", Message: http.StatusText(status)})
		return
	}
	if fe.Kind == failure.ErrRateLimited && fe.Wait > 0 {
		secs := int64(math.Ceil(fe.Wait.Seconds()))
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeJSON(w, status, types.Reply{Title: fe.Title, Message: fe.Message})
}

func writeBadRequest(w http.ResponseWriter, title string, err error) {
	writeJSON(w, http.StatusBadRequest, types.Reply{Title: title, Message: fmt.Errorf("%w: %w", ErrBadRequest, err).Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, types.Reply{
		Title:   "Request failed",
		Message: ErrMethodNotAllowed.Error(),
	})
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
