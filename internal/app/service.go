// Package service implements the user, run and leaderboard operations on top
// of the SQLite store and owns the maintenance sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/tagcaption/internal/adapters/repository"
	"github.com/okian/tagcaption/internal/adapters/scheduler"
	"github.com/okian/tagcaption/internal/config"
	"github.com/okian/tagcaption/internal/domain/failure"
	"github.com/okian/tagcaption/pkg/logger"
	"github.com/okian/tagcaption/pkg/metrics"
)

// ShutdownPriority is the slot the service takes in the process shutdown
// registry. Transports stop before it.
const ShutdownPriority = 10

// Service is the context object shared by every operation.
type Service struct {
	mu sync.RWMutex

	// Core components
	store   repository.Store
	sweeper *scheduler.Sweeper
	tokens  repository.TokenSource

	// Configuration
	dbPath              string
	operatorEmail       string
	uploadDelay         time.Duration
	sweepInterval       time.Duration
	retention           time.Duration
	maxLeaderboardLimit int
	tokenAttempts       int
	now                 func() time.Time
	location            *time.Location

	// State
	started bool

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig copies every service setting from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		WithDBPath(cfg.DBPath)(s)
		WithOperatorEmail(cfg.EmailAddress)(s)
		WithUploadDelay(cfg.UploadDelay())(s)
		WithSweepInterval(cfg.TimerDelay())(s)
		WithRetention(cfg.TimerClean())(s)
		WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit)(s)
		WithTokenAttempts(cfg.TokenAttempts)(s)
	}
}

// WithDBPath sets the SQLite file opened by Start.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithOperatorEmail sets the address whose registrations are verified.
func WithOperatorEmail(email string) Option {
	return func(s *Service) {
		s.operatorEmail = email
	}
}

// WithUploadDelay sets the minimum distance between two live submissions.
func WithUploadDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.uploadDelay = d
		}
	}
}

// WithSweepInterval sets how often stale runs are purged.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRetention sets how long pending or errored runs are kept unmodified.
func WithRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithMaxLeaderboardLimit clamps requested leaderboard limits to n. Zero
// removes the cap.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxLeaderboardLimit = n
		}
	}
}

// WithTokenAttempts bounds token regeneration on collision.
func WithTokenAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.tokenAttempts = n
		}
	}
}

// WithTokenSource replaces the token generator used by the store Start opens.
func WithTokenSource(src repository.TokenSource) Option {
	return func(s *Service) {
		if src != nil {
			s.tokens = src
		}
	}
}

// WithStore injects an already opened store. Start then skips opening one,
// and Stop still closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone used for human-readable leaderboard times.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a Service with defaults matching config.New.
func New(opts ...Option) *Service {
	cfg := config.New()
	s := &Service{
		dbPath:              cfg.DBPath,
		uploadDelay:         cfg.UploadDelay(),
		sweepInterval:       cfg.TimerDelay(),
		retention:           cfg.TimerClean(),
		maxLeaderboardLimit: cfg.MaxLeaderboardLimit,
		tokenAttempts:       cfg.TokenAttempts,
		now:                 time.Now,
		location:            time.Local,
		logger:              nil, // resolved in Start
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the store unless one was injected and starts the sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting tagcaption service...")

	if s.store == nil {
		storeOpts := []repository.Option{
			repository.WithClock(s.now),
			repository.WithTokenAttempts(s.tokenAttempts),
		}
		if s.tokens != nil {
			storeOpts = append(storeOpts, repository.WithTokenSource(s.tokens))
		}
		store, err := repository.Open(ctx, s.dbPath, storeOpts...)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
		s.logger.Info(ctx, "opened sqlite store", logger.String("path", s.dbPath))
	}

	s.sweeper = scheduler.New(s.store,
		scheduler.WithInterval(s.sweepInterval),
		scheduler.WithRetention(s.retention),
		scheduler.WithClock(s.now),
		scheduler.WithLogger(s.logger.Named("sweeper")),
	)
	if err := s.sweeper.Start(ctx); err != nil {
		_ = s.store.Close()
		s.store = nil
		return fmt.Errorf("start sweeper: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "tagcaption service started",
		logger.Duration("uploadDelay", s.uploadDelay),
		logger.Duration("sweepInterval", s.sweepInterval),
		logger.Duration("retention", s.retention),
	)

	return nil
}

// Stop waits for an in-flight sweep, stops the scheduler and closes the
// store. Calling it again is a no-op.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping tagcaption service...")

	var errs []error
	if s.sweeper != nil {
		if err := s.sweeper.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}

	s.started = false
	s.store = nil
	s.sweeper = nil
	s.logger.Info(ctx, "tagcaption service stopped")
	return errors.Join(errs...)
}

// Shutdown adapts Stop to the shutdown registry hook signature.
func (s *Service) Shutdown(context.Context) error {
	return s.Stop()
}

// Started reports whether Start completed and Stop has not run.
func (s *Service) Started() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]any{
		"started":             s.started,
		"dbPath":              s.dbPath,
		"uploadDelayMs":       s.uploadDelay.Milliseconds(),
		"sweepIntervalMs":     s.sweepInterval.Milliseconds(),
		"retentionMs":         s.retention.Milliseconds(),
		"maxLeaderboardLimit": s.maxLeaderboardLimit,
	}
}

// currentStore returns the store, or ErrNotConfigured before Start.
func (s *Service) currentStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started || s.store == nil {
		return nil, repository.ErrNotConfigured
	}
	return s.store, nil
}

func (s *Service) log() logger.Logger {
	s.mu.RLock()
	l := s.logger
	s.mu.RUnlock()
	if l == nil {
		return logger.Get().Named("service")
	}
	return l
}

// storeFailure maps a repository error onto the failure taxonomy.
func storeFailure(op, title string, err error, notFound, conflict string) *failure.Error {
	switch {
	case errors.Is(err, repository.ErrNotFound) && notFound != "":
		return failure.NotFound(op, title, notFound)
	case errors.Is(err, repository.ErrConflict) && conflict != "":
		return failure.Conflict(op, title, conflict)
	default:
		return failure.Storage(op, title, err)
	}
}

func outcome(fe *failure.Error) string {
	switch fe.Kind {
	case failure.ErrValidation:
		return "validation"
	case failure.ErrConflict:
		return "conflict"
	case failure.ErrNotFound:
		return "not_found"
	case failure.ErrRateLimited:
		return "rate_limited"
	default:
		return "storage"
	}
}

// fail logs fe with the identifying fields, counts it and returns it.
func (s *Service) fail(ctx context.Context, fe *failure.Error, fields ...logger.Field) error {
	fields = append(fields, logger.String("op", fe.Op), logger.String("reason", fe.Message))
	if fe.Kind == failure.ErrStorage {
		s.log().Error(ctx, fe.Title, append(fields, logger.Error(fe.Err))...)
		metrics.RecordErrorByComponent("service", fe.Op)
	} else {
		s.log().Debug(ctx, fe.Title, fields...)
	}
	metrics.RecordOperation(fe.Op, outcome(fe))
	return fe
}

// succeed logs and counts a successful operation.
func (s *Service) succeed(ctx context.Context, op, msg string, fields ...logger.Field) {
	s.log().Debug(ctx, msg, fields...)
	metrics.RecordOperation(op, "ok")
}
