// Package sqlite is the durable refresh.Store driver. It satisfies the
// same contract as the in-memory reference, with real transactions
// backing WithTx.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keyline/keyline/internal/refresh"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the sqlite-backed refresh token store.
type Store struct {
	db *sql.DB
	q  queries
}

// New opens the database at dsn and configures it for service use:
// WAL journaling for concurrent readers and a busy timeout so writers
// queue instead of failing.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA foreign_keys = ON;`,
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(context.Background(), p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db, q: queries{db: db}}, nil
}

func (s *Store) CreateToken(ctx context.Context, rec refresh.Record) error {
	return s.q.createToken(ctx, rec)
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (refresh.Record, error) {
	return s.q.getToken(ctx, tokenID)
}

func (s *Store) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	return s.q.countActive(ctx, userID, now)
}

func (s *Store) OldestActive(ctx context.Context, userID string, now time.Time) (refresh.Record, error) {
	return s.q.oldestActive(ctx, userID, now)
}

func (s *Store) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	return s.q.listActiveByUser(ctx, userID, now)
}

func (s *Store) RevokeToken(ctx context.Context, tokenID, reason string) error {
	return s.q.revokeToken(ctx, tokenID, reason)
}

func (s *Store) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	return s.q.revokeAllUserTokens(ctx, userID, reason)
}

func (s *Store) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	return s.q.revokeFamily(ctx, familyID, reason)
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.q.deleteExpired(ctx, now)
}

// WithTx runs fn inside a database transaction, rolling back on error.
func (s *Store) WithTx(ctx context.Context, fn func(tx refresh.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Safe to call after commit.
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txStore{q: queries{db: tx}}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// txStore is the transaction-scoped view handed to WithTx callbacks.
type txStore struct {
	q queries
}

func (t *txStore) CreateToken(ctx context.Context, rec refresh.Record) error {
	return t.q.createToken(ctx, rec)
}

func (t *txStore) GetToken(ctx context.Context, tokenID string) (refresh.Record, error) {
	return t.q.getToken(ctx, tokenID)
}

func (t *txStore) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	return t.q.countActive(ctx, userID, now)
}

func (t *txStore) OldestActive(ctx context.Context, userID string, now time.Time) (refresh.Record, error) {
	return t.q.oldestActive(ctx, userID, now)
}

func (t *txStore) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	return t.q.listActiveByUser(ctx, userID, now)
}

func (t *txStore) RevokeToken(ctx context.Context, tokenID, reason string) error {
	return t.q.revokeToken(ctx, tokenID, reason)
}

func (t *txStore) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	return t.q.revokeAllUserTokens(ctx, userID, reason)
}

func (t *txStore) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	return t.q.revokeFamily(ctx, familyID, reason)
}

func (t *txStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return t.q.deleteExpired(ctx, now)
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx refresh.Store) error) error {
	return fmt.Errorf("sqlite: nested transactions are not supported")
}

func (t *txStore) Ping(ctx context.Context) error { return nil }
func (t *txStore) Close() error                   { return nil }

func mapNotFound(err error, tokenID string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", refresh.ErrTokenNotFound, tokenID)
	}
	return err
}
