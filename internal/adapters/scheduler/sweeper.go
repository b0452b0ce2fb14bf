// Package scheduler runs the periodic maintenance sweep over stored runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/pkg/logger"
	"github.com/okian/tagcaption/pkg/metrics"
)

// Default sweep configuration constants.
const (
	defaultInterval    = 10 * time.Minute
	defaultRetention   = 24 * time.Hour
	defaultStopTimeout = 30 * time.Second
	jobName            = "maintenance-sweep"
)

// Store is the part of the repository the sweep touches.
type Store interface {
	DeleteStaleRuns(ctx context.Context, cutoff time.Time) (int64, error)
	Snapshot(ctx context.Context) ([]model.SnapshotEntry, error)
}

// Sweeper periodically purges stale pending or errored runs and logs a
// snapshot of what remains. Ticks never overlap.
type Sweeper struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    logger.Logger

	stopTimeout time.Duration

	// tick is held for the whole of a scheduled sweep so Stop can wait
	// for one that outlived the scheduler's stop timeout.
	tick sync.Mutex

	mu     sync.Mutex
	sched  gocron.Scheduler
	jobID  uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Sweeper over store.
func New(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		interval:  defaultInterval,
		retention: defaultRetention,
		now:       time.Now,

		stopTimeout: defaultStopTimeout,
		logger:    logger.Get().Named("sweeper"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the sweep every interval. The first tick fires one
// interval after Start.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return ErrNoStore
	}
	if s.sched != nil {
		return ErrAlreadyStarted
	}

	sched, err := gocron.NewScheduler(
		gocron.WithLogger(gocronLogger{l: s.logger.Named("gocron")}),
		gocron.WithStopTimeout(s.stopTimeout),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	// Ticks outlive the caller's context; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	job, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() error { return s.scheduledSweep(runCtx) }),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithEventListeners(
			gocron.AfterJobRunsWithError(func(id uuid.UUID, name string, err error) {
				s.logger.Debug(runCtx, "sweep tick failed",
					logger.String("job_id", id.String()),
					logger.String("job", name),
					logger.Error(err))
			}),
		),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	sched.Start()
	s.sched, s.jobID, s.ctx, s.cancel = sched, job.ID(), runCtx, cancel

	s.logger.Info(ctx, "sweeper started",
		logger.String("job_id", s.jobID.String()),
		logger.Duration("interval", s.interval),
		logger.Duration("retention", s.retention))
	return nil
}

// Stop shuts the scheduler down, waiting for an in-flight tick to finish.
// A tick still running after the stop timeout has its context canceled and
// is waited for, so the store is never used after Stop returns. It is safe
// to call more than once.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.cancel()
	s.tick.Lock()
	s.tick.Unlock() //nolint:staticcheck // waits for the running tick
	s.logger.Info(s.ctx, "sweeper stopped", logger.String("job_id", s.jobID.String()))
	s.sched, s.ctx, s.cancel = nil, nil, nil
	if err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (s *Sweeper) scheduledSweep(ctx context.Context) error {
	s.tick.Lock()
	defer s.tick.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	return s.Sweep(ctx)
}

// Sweep runs one maintenance tick. Failures are logged and returned but
// never retried; a failed delete skips the snapshot.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := time.Now()
	cutoff := s.now().Add(-s.retention)

	deleted, err := s.store.DeleteStaleRuns(ctx, cutoff)
	if err != nil {
		s.logger.Error(ctx, "failed to delete stale runs",
			logger.Int64("cutoff_ms", cutoff.UnixMilli()),
			logger.Error(err))
		metrics.RecordErrorByComponent("sweeper", "delete")
		metrics.RecordSweep(0, time.Since(start), true)
		return fmt.Errorf("delete stale runs: %w", err)
	}
	s.logger.Info(ctx, "deleted stale runs",
		logger.Int64("deleted", deleted),
		logger.Int64("cutoff_ms", cutoff.UnixMilli()))

	serr := s.logSnapshot(ctx)
	metrics.RecordSweep(deleted, time.Since(start), serr != nil)
	return serr
}

func (s *Sweeper) logSnapshot(ctx context.Context) error {
	entries, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to list users and runs", logger.Error(err))
		metrics.RecordErrorByComponent("sweeper", "snapshot")
		return fmt.Errorf("snapshot: %w", err)
	}

	users := make(map[string]struct{}, len(entries))
	runs := 0
	for _, e := range entries {
		users[e.Token] = struct{}{}
		fields := []logger.Field{
			logger.String("name", e.Name),
			logger.String("email", e.Email),
			logger.String("token", e.Token),
		}
		if e.Run != nil {
			runs++
			fields = append(fields,
				logger.Int64("timestamp", e.Run.Timestamp),
				logger.Int("state", e.Run.State),
				logger.String("subtask", string(e.Run.Subtask)),
				logger.OptionalFloat64("score1", e.Run.Score1),
				logger.OptionalFloat64("score2", e.Run.Score2),
				logger.OptionalFloat64("score3", e.Run.Score3),
				logger.String("comment", e.Run.Comment),
				logger.Int64("lastmodified", e.Run.LastModified.UnixMilli()),
			)
		}
		s.logger.Debug(ctx, "snapshot entry", fields...)
	}

	metrics.UpdateSnapshot(len(users), runs)
	s.logger.Info(ctx, "snapshot", logger.Int("users", len(users)), logger.Int("runs", runs))
	return nil
}

// Running reports whether the scheduler is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}
