package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound means no record exists for the token ID.
	ErrTokenNotFound = errors.New("refresh: token not found")

	// ErrTokenRevoked means the record exists but is terminally revoked.
	ErrTokenRevoked = errors.New("refresh: token revoked")

	// ErrAlreadyExists means a record with the same token ID was
	// already inserted.
	ErrAlreadyExists = errors.New("refresh: token already exists")

	// ErrScopeNotGranted means a refresh request asked for a permission
	// the original grant never carried.
	ErrScopeNotGranted = errors.New("refresh: scope not granted")
)

// Store is the persistence contract for refresh token records. The
// in-memory implementation is the reference; any durable store
// satisfying it is a legal substitute.
//
// Multi-step flows that must be atomic (quota-check-then-insert,
// revoke-then-rotate) run inside WithTx. A store must guarantee that
// two concurrent WithTx executions touching the same records are
// totally ordered. Nesting WithTx is not supported.
type Store interface {
	// CreateToken inserts a new record. ErrAlreadyExists on ID collision.
	CreateToken(ctx context.Context, rec Record) error

	// GetToken returns a record by token ID, revoked or not.
	GetToken(ctx context.Context, tokenID string) (Record, error)

	// CountActive returns how many non-revoked, non-expired records a
	// user holds.
	CountActive(ctx context.Context, userID string, now time.Time) (int, error)

	// OldestActive returns the user's earliest-created active record.
	// ErrTokenNotFound when the user has none.
	OldestActive(ctx context.Context, userID string, now time.Time) (Record, error)

	// ListActiveByUser returns a user's active records ordered by
	// creation time, oldest first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]Record, error)

	// RevokeToken flips revoked=true with a reason. Idempotent: an
	// already-revoked record keeps its original reason and returns nil.
	RevokeToken(ctx context.Context, tokenID, reason string) error

	// RevokeAllUserTokens revokes every active record for a user and
	// returns how many were flipped.
	RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error)

	// RevokeFamily revokes every active record in a family and returns
	// how many were flipped.
	RevokeFamily(ctx context.Context, familyID, reason string) (int, error)

	// DeleteExpired purges records past their expiry, revoked or not,
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// WithTx executes fn atomically. fn's store view must not be
	// retained after return.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases underlying resources.
	Close() error
}
