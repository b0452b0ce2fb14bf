package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
)

// fixedTokens hands out a scripted sequence of tokens.
type fixedTokens struct {
	tokens []string
	next   int
}

func (f *fixedTokens) New() (string, error) {
	if f.next >= len(f.tokens) {
		return "", errors.New("out of tokens")
	}
	tok := f.tokens[f.next]
	f.next++
	return tok, nil
}

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestStore(t *testing.T, opts ...Option) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	store, err := Open(context.Background(), path, opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateUser(t *testing.T, s *SQLiteStore, name, email string) string {
	t.Helper()
	tok, err := s.CreateUser(context.Background(), model.User{Name: name, Email: email})
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return tok
}

func mustAddRun(t *testing.T, s *SQLiteStore, tok string, ts int64, subtask model.Subtask) {
	t.Helper()
	if err := s.AddRun(context.Background(), tok, ts, subtask, ""); err != nil {
		t.Fatalf("add run %d: %v", ts, err)
	}
}

func mustUpdateRun(t *testing.T, s *SQLiteStore, tok string, ts int64, subtask model.Subtask, state int, score1 *float64) {
	t.Helper()
	err := s.UpdateRun(context.Background(), model.Run{
		Token: tok, Timestamp: ts, Subtask: subtask, State: state, Score1: score1, Comment: "scored",
	})
	if err != nil {
		t.Fatalf("update run %d: %v", ts, err)
	}
}

func score(v float64) *float64 { return &v }

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_ReopensExistingSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	first, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tok := mustCreateUser(t, first, "alice", "alice@example.com")
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	ok, err := second.TokenExists(ctx, tok)
	if err != nil {
		t.Fatalf("token exists: %v", err)
	}
	if !ok {
		t.Error("expected user to survive reopen")
	}
}

func TestSQLiteStore_NilStore(t *testing.T) {
	var s *SQLiteStore
	if _, err := s.TokenExists(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("expected nil close on nil store, got %v", err)
	}
}

func TestSQLiteStore_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.CreateUser(ctx, model.User{Name: "alice", Email: "a@example.com"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSQLiteStore_CreateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithTokenSource(&fixedTokens{tokens: []string{"tok-a", "tok-b"}}))

	tok, err := s.CreateUser(ctx, model.User{Name: "Alice", Email: "alice@example.com", Verified: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tok != "tok-a" {
		t.Errorf("expected tok-a, got %s", tok)
	}

	u, err := s.GetUser(ctx, tok)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.Name != "Alice" || u.Email != "alice@example.com" || !u.Verified || u.Token != tok {
		t.Errorf("unexpected user %+v", u)
	}

	// Names collide regardless of case.
	if _, err := s.CreateUser(ctx, model.User{Name: "alice", Email: "x@example.com"}); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestSQLiteStore_CreateUserRetriesTakenToken(t *testing.T) {
	ctx := context.Background()
	src := &fixedTokens{tokens: []string{"dup", "dup", "fresh"}}
	s := newTestStore(t, WithTokenSource(src))

	if tok := mustCreateUser(t, s, "alice", "a@example.com"); tok != "dup" {
		t.Fatalf("expected dup, got %s", tok)
	}
	tok, err := s.CreateUser(ctx, model.User{Name: "bob", Email: "b@example.com"})
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if tok != "fresh" {
		t.Errorf("expected fresh, got %s", tok)
	}
}

func TestSQLiteStore_CreateUserTokenExhausted(t *testing.T) {
	ctx := context.Background()
	src := &fixedTokens{tokens: []string{"dup", "dup", "dup", "dup"}}
	s := newTestStore(t, WithTokenSource(src), WithTokenAttempts(3))

	mustCreateUser(t, s, "alice", "a@example.com")
	if _, err := s.CreateUser(ctx, model.User{Name: "bob", Email: "b@example.com"}); !errors.Is(err, ErrTokenExhausted) {
		t.Errorf("expected ErrTokenExhausted, got %v", err)
	}
	ok, err := s.TokenExists(ctx, "dup")
	if err != nil || !ok {
		t.Errorf("expected alice's token to remain, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStore_UpdateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	alice := mustCreateUser(t, s, "alice", "a@example.com")
	mustCreateUser(t, s, "bob", "b@example.com")

	if err := s.UpdateUser(ctx, alice, "ALICE", "new@example.com"); err != nil {
		t.Fatalf("rename own name: %v", err)
	}
	u, err := s.GetUser(ctx, alice)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Name != "ALICE" || u.Email != "new@example.com" {
		t.Errorf("unexpected user %+v", u)
	}

	if err := s.UpdateUser(ctx, alice, "Bob", "a@example.com"); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if err := s.UpdateUser(ctx, "missing", "carol", "c@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tok := mustCreateUser(t, s, "Alice", "Alice@Example.com")
	mustAddRun(t, s, tok, 1000, model.SubtaskTag)

	if err := s.DeleteUser(ctx, tok, "alice", "wrong@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on email mismatch, got %v", err)
	}
	if err := s.DeleteUser(ctx, tok, "ALICE", "alice@example.COM"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetUser(ctx, tok); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRun(ctx, tok, 1000); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected run removed with its user, got %v", err)
	}
}

func TestSQLiteStore_AddRunUnknownToken(t *testing.T) {
	s := newTestStore(t)
	err := s.AddRun(context.Background(), "nobody", 1000, model.SubtaskTag, "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_AddRunReplacesPendingAndErrored(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tok := mustCreateUser(t, s, "alice", "a@example.com")

	mustAddRun(t, s, tok, 1000, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 1000, model.SubtaskTag, model.StateValid, score(0.5))
	mustAddRun(t, s, tok, 2000, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 2000, model.SubtaskTag, -1, nil)
	mustAddRun(t, s, tok, 3000, model.SubtaskCaption)
	mustAddRun(t, s, tok, 4000, model.SubtaskTag)

	entries, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	got := make([]string, 0, len(entries))
	for _, e := range entries {
		got = append(got, fmt.Sprintf("%d/%d/%s", e.Run.Timestamp, e.Run.State, e.Run.Subtask))
	}
	want := []string{"4000/0/tag", "3000/0/caption", "1000/1/tag"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("expected runs %v, got %v", want, got)
	}
}

func TestSQLiteStore_LastLiveTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tok := mustCreateUser(t, s, "alice", "a@example.com")

	last, err := s.LastLiveTimestamp(ctx, tok, model.SubtaskTag)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 0 {
		t.Errorf("expected 0 without runs, got %d", last)
	}

	mustAddRun(t, s, tok, 1000, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 1000, model.SubtaskTag, model.StateValid, score(1))
	mustAddRun(t, s, tok, 5000, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 5000, model.SubtaskTag, -2, nil)

	last, err = s.LastLiveTimestamp(ctx, tok, model.SubtaskTag)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 1000 {
		t.Errorf("expected errored run to be ignored, got %d", last)
	}

	last, err = s.LastLiveTimestamp(ctx, tok, model.SubtaskCaption)
	if err != nil {
		t.Fatalf("last: %v", err)
	}
	if last != 0 {
		t.Errorf("expected 0 for other subtask, got %d", last)
	}
}

func TestSQLiteStore_UpdateRun(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.UnixMilli(10_000)}
	s := newTestStore(t, WithClock(clk.Now))
	tok := mustCreateUser(t, s, "alice", "a@example.com")
	mustAddRun(t, s, tok, 1000, model.SubtaskTag)

	err := s.UpdateRun(ctx, model.Run{Token: tok, Timestamp: 1000, Subtask: model.SubtaskCaption, State: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for subtask mismatch, got %v", err)
	}

	clk.now = time.UnixMilli(20_000)
	err = s.UpdateRun(ctx, model.Run{
		Token: tok, Timestamp: 1000, Subtask: model.SubtaskTag, State: 1,
		Score1: score(0.9), Score3: score(0.1), Comment: "ok",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	entries, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(entries) != 1 || entries[0].Run == nil {
		t.Fatalf("expected one run, got %+v", entries)
	}
	run := entries[0].Run
	if run.State != 1 || run.Comment != "ok" || run.Score2 != nil || *run.Score1 != 0.9 || *run.Score3 != 0.1 {
		t.Errorf("unexpected run %+v", run)
	}
	if !run.LastModified.Equal(time.UnixMilli(20_000)) {
		t.Errorf("expected lastmodified to follow the clock, got %v", run.LastModified)
	}
}

func TestSQLiteStore_DeleteRun(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tok := mustCreateUser(t, s, "alice", "a@example.com")
	mustAddRun(t, s, tok, 1000, model.SubtaskTag)

	if err := s.DeleteRun(ctx, tok, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteRun(ctx, tok, 1000); err != nil {
		t.Errorf("delete: %v", err)
	}
}

func TestSQLiteStore_Leaderboard(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u1 := mustCreateUser(t, s, "u1", "u1@example.com")
	u2 := mustCreateUser(t, s, "u2", "u2@example.com")
	u3 := mustCreateUser(t, s, "u3", "u3@example.com")
	mustCreateUser(t, s, "idle", "idle@example.com")

	mustAddRun(t, s, u1, 1000, model.SubtaskTag)
	mustUpdateRun(t, s, u1, 1000, model.SubtaskTag, 1, score(0.5))
	mustAddRun(t, s, u1, 2000, model.SubtaskTag)
	mustUpdateRun(t, s, u1, 2000, model.SubtaskTag, 1, score(0.7))
	mustAddRun(t, s, u2, 1500, model.SubtaskTag)
	mustUpdateRun(t, s, u2, 1500, model.SubtaskTag, 1, score(0.6))
	mustAddRun(t, s, u3, 3000, model.SubtaskTag)
	mustAddRun(t, s, u2, 4000, model.SubtaskCaption)
	mustUpdateRun(t, s, u2, 4000, model.SubtaskCaption, -1, nil)

	t.Run("ascending keeps each user's lowest score", func(t *testing.T) {
		lb, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskTag, Sort: model.SortAsc, Limit: 10})
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		if len(lb.Valid) != 2 {
			t.Fatalf("expected 2 valid rows, got %+v", lb.Valid)
		}
		if lb.Valid[0].Name != "u1" || *lb.Valid[0].Score1 != 0.5 || lb.Valid[0].Timestamp != 1000 {
			t.Errorf("unexpected first row %+v", lb.Valid[0])
		}
		if lb.Valid[1].Name != "u2" || *lb.Valid[1].Score1 != 0.6 {
			t.Errorf("unexpected second row %+v", lb.Valid[1])
		}
		if len(lb.Active) != 1 || lb.Active[0].Name != "u3" || lb.Active[0].State != 0 {
			t.Errorf("unexpected active list %+v", lb.Active)
		}
		if len(lb.Invalid) != 0 {
			t.Errorf("expected no invalid rows for tag, got %+v", lb.Invalid)
		}
	})

	t.Run("descending keeps each user's highest score", func(t *testing.T) {
		lb, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskTag, Sort: model.SortDesc, Limit: 10})
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		if len(lb.Valid) != 2 || lb.Valid[0].Name != "u1" || *lb.Valid[0].Score1 != 0.7 || lb.Valid[0].Timestamp != 2000 {
			t.Errorf("unexpected valid list %+v", lb.Valid)
		}
		if lb.Valid[1].Name != "u2" {
			t.Errorf("expected u2 second, got %+v", lb.Valid[1])
		}
	})

	t.Run("limit truncates the valid list only", func(t *testing.T) {
		lb, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskTag, Sort: model.SortDesc, Limit: 1})
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		if len(lb.Valid) != 1 || len(lb.Active) != 1 {
			t.Errorf("unexpected lengths valid=%d active=%d", len(lb.Valid), len(lb.Active))
		}
	})

	t.Run("other subtask", func(t *testing.T) {
		lb, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskCaption, Sort: model.SortAsc, Limit: 10})
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		if len(lb.Valid) != 0 || len(lb.Active) != 0 {
			t.Errorf("expected empty valid and active lists, got %+v", lb)
		}
		if len(lb.Invalid) != 1 || lb.Invalid[0].Name != "u2" || lb.Invalid[0].State != -1 {
			t.Errorf("unexpected invalid list %+v", lb.Invalid)
		}
	})

	t.Run("unknown sort is rejected", func(t *testing.T) {
		if _, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskTag, Sort: "sideways", Limit: 1}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSQLiteStore_LeaderboardTieBreaks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustCreateUser(t, s, "bravo", "b@example.com")
	a := mustCreateUser(t, s, "alpha", "a@example.com")
	n := mustCreateUser(t, s, "nil", "n@example.com")

	mustAddRun(t, s, b, 1000, model.SubtaskTag)
	mustUpdateRun(t, s, b, 1000, model.SubtaskTag, 1, score(0.5))
	mustAddRun(t, s, a, 1000, model.SubtaskTag)
	mustUpdateRun(t, s, a, 1000, model.SubtaskTag, 1, score(0.5))
	mustAddRun(t, s, n, 500, model.SubtaskTag)
	mustUpdateRun(t, s, n, 500, model.SubtaskTag, 1, nil)

	for _, dir := range []model.Sort{model.SortAsc, model.SortDesc} {
		lb, err := s.Leaderboard(ctx, model.LeaderboardQuery{Subtask: model.SubtaskTag, Sort: dir, Limit: 10})
		if err != nil {
			t.Fatalf("leaderboard %s: %v", dir, err)
		}
		names := make([]string, 0, len(lb.Valid))
		for _, st := range lb.Valid {
			names = append(names, st.Name)
		}
		if fmt.Sprint(names) != "[alpha bravo nil]" {
			t.Errorf("%s: expected [alpha bravo nil], got %v", dir, names)
		}
	}
}

func TestSQLiteStore_DeleteStaleRuns(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.UnixMilli(1_000_000)}
	s := newTestStore(t, WithClock(clk.Now))
	tok := mustCreateUser(t, s, "alice", "a@example.com")

	mustAddRun(t, s, tok, 1, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 1, model.SubtaskTag, 1, score(0.3))
	mustAddRun(t, s, tok, 2, model.SubtaskTag)
	mustUpdateRun(t, s, tok, 2, model.SubtaskTag, -1, nil)
	mustAddRun(t, s, tok, 3, model.SubtaskCaption)

	clk.now = time.UnixMilli(2_000_000)
	mustAddRun(t, s, tok, 4, model.SubtaskCaption) // replaces the caption run at 3

	deleted, err := s.DeleteStaleRuns(ctx, time.UnixMilli(1_000_000))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected the errored tag run to go, deleted %d", deleted)
	}

	entries, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(entries) != 2 || entries[0].Run.Timestamp != 4 || entries[1].Run.Timestamp != 1 {
		t.Errorf("unexpected remaining runs %+v", entries)
	}
}

func TestSQLiteStore_SnapshotIncludesUsersWithoutRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	bob := mustCreateUser(t, s, "bob", "b@example.com")
	mustCreateUser(t, s, "alice", "a@example.com")
	mustAddRun(t, s, bob, 1000, model.SubtaskTag)

	entries, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "alice" || entries[0].Run != nil {
		t.Errorf("expected alice without run first, got %+v", entries[0])
	}
	if entries[1].Name != "bob" || entries[1].Run == nil || entries[1].Run.Token != bob {
		t.Errorf("expected bob with run second, got %+v", entries[1])
	}
}
