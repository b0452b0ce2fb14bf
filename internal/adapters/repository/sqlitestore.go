package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/tagcaption/internal/domain/model"
	"github.com/okian/tagcaption/internal/domain/token"
	"github.com/okian/tagcaption/pkg/metrics"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	defaultTokenAttempts = 8
	dsnPragmas           = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
)

//go:embed schema.sql
var schema string

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db            *sql.DB
	tokens        TokenSource
	tokenAttempts int
	now           func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func toMillis(value time.Time) int64 {
	return value.UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cleanPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serialises statements and transactions the way the
	// engine would for a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		db:            db,
		tokens:        token.NewGenerator(),
		tokenAttempts: defaultTokenAttempts,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func ensureForeignKeysEnabled(ctx context.Context, db *sql.DB) error {
	var enabled int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return ErrNotConfigured
	}
	return nil
}

// observe records latency and failures of one repository call. Sentinel
// outcomes are not storage failures.
func observe(query string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		err = nil
	}
	metrics.RecordRepositoryQuery(query, time.Since(start), err)
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	return isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	return isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY)
}

// withTx runs fn in a transaction, committing on success.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countRows(ctx context.Context, q queryRower, query string, args ...any) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CreateUser checks the name, draws a unique token and inserts the user in
// one transaction.
func (s *SQLiteStore) CreateUser(ctx context.Context, u model.User) (tok string, err error) {
	defer func(start time.Time) { observe("create_user", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return "", err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := countRows(ctx, tx, `SELECT COUNT(*) FROM users WHERE LOWER(name) = LOWER(?)`, u.Name)
		if err != nil {
			return fmt.Errorf("check name: %w", err)
		}
		if taken != 0 {
			return ErrConflict
		}

		tok, err = s.generateToken(ctx, tx)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (name, email, token, verified) VALUES (?, ?, ?, ?)`,
			u.Name, u.Email, tok, boolToInt(u.Verified),
		); err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return tok, nil
}

// generateToken draws tokens until one is unused, up to tokenAttempts.
func (s *SQLiteStore) generateToken(ctx context.Context, q queryRower) (string, error) {
	for attempt := 0; attempt < s.tokenAttempts; attempt++ {
		candidate, err := s.tokens.New()
		if err != nil {
			return "", fmt.Errorf("generate token: %w", err)
		}
		n, err := countRows(ctx, q, `SELECT COUNT(*) FROM users WHERE token = ?`, candidate)
		if err != nil {
			return "", fmt.Errorf("check token: %w", err)
		}
		if n == 0 {
			return candidate, nil
		}
	}
	return "", ErrTokenExhausted
}

// UpdateUser changes name and email of the user owning token.
func (s *SQLiteStore) UpdateUser(ctx context.Context, token, name, email string) (err error) {
	defer func(start time.Time) { observe("update_user", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		taken, err := countRows(ctx, tx, `SELECT COUNT(*) FROM users WHERE LOWER(name) = LOWER(?) AND token <> ?`, name, token)
		if err != nil {
			return fmt.Errorf("check name: %w", err)
		}
		if taken != 0 {
			return ErrConflict
		}

		res, err := tx.ExecContext(ctx, `UPDATE users SET name = ?, email = ? WHERE token = ?`, name, email, token)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("update user: %w", err)
		}
		n, err := affected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteUser removes the user whose name, email and token all match. Name
// and email compare case-insensitively. Runs go with the user.
func (s *SQLiteStore) DeleteUser(ctx context.Context, token, name, email string) (err error) {
	defer func(start time.Time) { observe("delete_user", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM users WHERE LOWER(name) = LOWER(?) AND LOWER(email) = LOWER(?) AND token = ?`,
		name, email, token,
	)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
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

// TokenExists reports whether a user owns token.
func (s *SQLiteStore) TokenExists(ctx context.Context, token string) (ok bool, err error) {
	defer func(start time.Time) { observe("token_exists", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return false, err
	}

	n, err := countRows(ctx, s.db, `SELECT COUNT(*) FROM users WHERE token = ?`, token)
	if err != nil {
		return false, fmt.Errorf("check token: %w", err)
	}
	return n != 0, nil
}

// GetUser returns the user owning token.
func (s *SQLiteStore) GetUser(ctx context.Context, token string) (u model.User, err error) {
	defer func(start time.Time) { observe("get_user", start, err) }(time.Now())
	if err = s.ready(ctx); err != nil {
		return model.User{}, err
	}

	var verified int
	err = s.db.QueryRowContext(ctx,
		`SELECT name, email, token, verified FROM users WHERE token = ?`, token,
	).Scan(&u.Name, &u.Email, &u.Token, &verified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Verified = verified != 0
	return u, nil
}
