package scheduler

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type fakeStore struct {
	mu          sync.Mutex
	cutoffs     []time.Time
	snapshots   int
	deleteErr   error
	snapshotErr error
	entries     []model.SnapshotEntry
	ticks       chan struct{}
}

func (f *fakeStore) DeleteStaleRuns(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 2, nil
}

func (f *fakeStore) Snapshot(context.Context) ([]model.SnapshotEntry, error) {
	f.mu.Lock()
	f.snapshots++
	entries, err := f.entries, f.snapshotErr
	f.mu.Unlock()
	if f.ticks != nil {
		select {
		case f.ticks <- struct{}{}:
		default:
		}
	}
	return entries, err
}

func (f *fakeStore) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs), f.snapshots
}

func TestSweeper_Sweep(t *testing.T) {
	Convey("Given a sweeper with a fixed clock", t, func() {
		now := time.UnixMilli(100_000_000)
		store := &fakeStore{}
		var buf bytes.Buffer
		s := New(store,
			WithRetention(time.Hour),
			WithClock(func() time.Time { return now }),
			WithLogger(logger.New(&buf, logger.FormatText)),
		)

		Convey("When a tick succeeds", func() {
			score := 0.5
			store.entries = []model.SnapshotEntry{
				{Name: "alice", Token: "a", Run: &model.Run{Timestamp: 2, Score1: &score}},
				{Name: "alice", Token: "a", Run: &model.Run{Timestamp: 1}},
				{Name: "bob", Token: "b"},
			}
			err := s.Sweep(context.Background())

			Convey("Then the cutoff is now minus the retention", func() {
				So(err, ShouldBeNil)
				So(store.cutoffs, ShouldHaveLength, 1)
				So(store.cutoffs[0].Equal(now.Add(-time.Hour)), ShouldBeTrue)
			})

			Convey("And the snapshot summary is logged", func() {
				So(store.snapshots, ShouldEqual, 1)
				So(buf.String(), ShouldContainSubstring, "deleted=2")
				So(buf.String(), ShouldContainSubstring, "users=2")
				So(buf.String(), ShouldContainSubstring, "runs=2")
			})
		})

		Convey("When the delete fails", func() {
			store.deleteErr = errors.New("disk gone")
			err := s.Sweep(context.Background())

			Convey("Then the error is returned and the snapshot is skipped", func() {
				So(err, ShouldNotBeNil)
				So(errors.Is(err, store.deleteErr), ShouldBeTrue)
				So(store.snapshots, ShouldEqual, 0)
				So(buf.String(), ShouldContainSubstring, "failed to delete stale runs")
			})
		})

		Convey("When the snapshot fails", func() {
			store.snapshotErr = errors.New("locked")
			err := s.Sweep(context.Background())

			Convey("Then the error is returned after the delete ran", func() {
				So(errors.Is(err, store.snapshotErr), ShouldBeTrue)
				So(store.cutoffs, ShouldHaveLength, 1)
			})
		})
	})
}

func TestSweeper_Lifecycle(t *testing.T) {
	Convey("Given a sweeper with a short interval", t, func() {
		store := &fakeStore{ticks: make(chan struct{}, 1)}
		s := New(store, WithInterval(20*time.Millisecond))

		Convey("When it is started", func() {
			err := s.Start(context.Background())
			defer s.Stop()

			Convey("Then ticks run on schedule", func() {
				So(err, ShouldBeNil)
				So(s.Running(), ShouldBeTrue)

				select {
				case <-store.ticks:
				case <-time.After(2 * time.Second):
				}
				deletes, snapshots := store.calls()
				So(deletes, ShouldBeGreaterThan, 0)
				So(snapshots, ShouldBeGreaterThan, 0)
			})

			Convey("And a second start is rejected", func() {
				So(s.Start(context.Background()), ShouldEqual, ErrAlreadyStarted)
			})

			Convey("And stop is idempotent", func() {
				So(s.Stop(), ShouldBeNil)
				So(s.Running(), ShouldBeFalse)
				So(s.Stop(), ShouldBeNil)
			})
		})
	})

	Convey("Given a sweeper without a store", t, func() {
		s := New(nil)

		Convey("Then start fails", func() {
			So(s.Start(context.Background()), ShouldEqual, ErrNoStore)
		})
	})
}

// blockingStore holds every delete until its context is canceled.
type blockingStore struct {
	started  chan struct{}
	mu       sync.Mutex
	returned bool
}

func (b *blockingStore) DeleteStaleRuns(ctx context.Context, _ time.Time) (int64, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	b.mu.Lock()
	b.returned = true
	b.mu.Unlock()
	return 0, ctx.Err()
}

func (b *blockingStore) Snapshot(context.Context) ([]model.SnapshotEntry, error) {
	return nil, nil
}

func (b *blockingStore) done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.returned
}

func TestSweeper_StopWaitsForSlowTick(t *testing.T) {
	Convey("Given a tick that outlives the stop timeout", t, func() {
		store := &blockingStore{started: make(chan struct{}, 1)}
		s := New(store,
			WithInterval(10*time.Millisecond),
			WithStopTimeout(50*time.Millisecond),
		)
		So(s.Start(context.Background()), ShouldBeNil)

		select {
		case <-store.started:
		case <-time.After(2 * time.Second):
			t.Fatal("tick never started")
		}

		Convey("When the sweeper is stopped", func() {
			err := s.Stop()

			Convey("Then the scheduler reports the timeout", func() {
				So(err, ShouldNotBeNil)
			})

			Convey("And the tick has returned before Stop does", func() {
				So(store.done(), ShouldBeTrue)
				So(s.Running(), ShouldBeFalse)
			})
		})
	})
}

func TestToFields(t *testing.T) {
	Convey("Given gocron style key/value arguments", t, func() {
		Convey("Then pairs become fields", func() {
			fields := toFields([]any{"job", "sweep", "attempt", 2})
			So(fields, ShouldHaveLength, 2)
			So(fields[0].Key, ShouldEqual, "job")
			So(fields[1].Value, ShouldEqual, 2)
		})

		Convey("Then a dangling key is kept", func() {
			fields := toFields([]any{"job", "sweep", "orphan"})
			So(fields, ShouldHaveLength, 2)
			So(fields[1].Key, ShouldEqual, "arg2")
		})

		Convey("Then a non-string key is kept positionally", func() {
			fields := toFields([]any{42, "job", "sweep"})
			So(fields, ShouldHaveLength, 2)
			So(fields[0].Key, ShouldEqual, "arg0")
			So(fields[1].Key, ShouldEqual, "job")
		})
	})
}
