package refresh

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemStore is the reference Store: a single mutex over a map. It is
// correctness-first; swap in the sqlite driver for durability or shard
// by user for throughput.
type MemStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

// memTx operates on the parent's map while the parent mutex is held by
// WithTx. It must never escape the callback.
type memTx struct {
	parent *MemStore
}

func (s *MemStore) CreateToken(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createToken(s.records, rec)
}

func (s *MemStore) GetToken(ctx context.Context, tokenID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getToken(s.records, tokenID)
}

func (s *MemStore) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countActive(s.records, userID, now), nil
}

func (s *MemStore) OldestActive(ctx context.Context, userID string, now time.Time) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return oldestActive(s.records, userID, now)
}

func (s *MemStore) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listActiveByUser(s.records, userID, now), nil
}

func (s *MemStore) RevokeToken(ctx context.Context, tokenID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeToken(s.records, tokenID, reason)
}

func (s *MemStore) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeWhere(s.records, reason, func(r Record) bool { return r.UserID == userID }), nil
}

func (s *MemStore) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return revokeWhere(s.records, reason, func(r Record) bool { return r.FamilyID == familyID }), nil
}

func (s *MemStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

// WithTx holds the store mutex across the whole callback, which makes
// check-then-act sequences atomic with respect to every other method.
func (s *MemStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{parent: s})
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }
func (s *MemStore) Close() error                   { return nil }

// memTx methods reuse the map helpers without re-locking.

func (t *memTx) CreateToken(ctx context.Context, rec Record) error {
	return createToken(t.parent.records, rec)
}

func (t *memTx) GetToken(ctx context.Context, tokenID string) (Record, error) {
	return getToken(t.parent.records, tokenID)
}

func (t *memTx) CountActive(ctx context.Context, userID string, now time.Time) (int, error) {
	return countActive(t.parent.records, userID, now), nil
}

func (t *memTx) OldestActive(ctx context.Context, userID string, now time.Time) (Record, error) {
	return oldestActive(t.parent.records, userID, now)
}

func (t *memTx) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	return listActiveByUser(t.parent.records, userID, now), nil
}

func (t *memTx) RevokeToken(ctx context.Context, tokenID, reason string) error {
	return revokeToken(t.parent.records, tokenID, reason)
}

func (t *memTx) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	return revokeWhere(t.parent.records, reason, func(r Record) bool { return r.UserID == userID }), nil
}

func (t *memTx) RevokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	return revokeWhere(t.parent.records, reason, func(r Record) bool { return r.FamilyID == familyID }), nil
}

func (t *memTx) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for id, rec := range t.parent.records {
		if !now.Before(rec.ExpiresAt) {
			delete(t.parent.records, id)
			removed++
		}
	}
	return removed, nil
}

func (t *memTx) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return fmt.Errorf("refresh: nested transactions are not supported")
}

func (t *memTx) Ping(ctx context.Context) error { return nil }
func (t *memTx) Close() error                   { return nil }

// Shared map operations. Callers hold the lock.

func createToken(records map[string]Record, rec Record) error {
	if _, ok := records[rec.TokenID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.TokenID)
	}
	records[rec.TokenID] = rec
	return nil
}

func getToken(records map[string]Record, tokenID string) (Record, error) {
	rec, ok := records[tokenID]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	return rec, nil
}

func countActive(records map[string]Record, userID string, now time.Time) int {
	n := 0
	for _, rec := range records {
		if rec.UserID == userID && rec.Active(now) {
			n++
		}
	}
	return n
}

func oldestActive(records map[string]Record, userID string, now time.Time) (Record, error) {
	var oldest Record
	found := false
	for _, rec := range records {
		if rec.UserID != userID || !rec.Active(now) {
			continue
		}
		if !found || rec.CreatedAt.Before(oldest.CreatedAt) {
			oldest = rec
			found = true
		}
	}
	if !found {
		return Record{}, fmt.Errorf("%w: no active tokens for user %s", ErrTokenNotFound, userID)
	}
	return oldest, nil
}

func listActiveByUser(records map[string]Record, userID string, now time.Time) []Record {
	var out []Record
	for _, rec := range records {
		if rec.UserID == userID && rec.Active(now) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func revokeToken(records map[string]Record, tokenID, reason string) error {
	rec, ok := records[tokenID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, tokenID)
	}
	if rec.Revoked {
		return nil
	}
	rec.Revoked = true
	rec.RevocationReason = reason
	records[tokenID] = rec
	return nil
}

func revokeWhere(records map[string]Record, reason string, match func(Record) bool) int {
	n := 0
	for id, rec := range records {
		if rec.Revoked || !match(rec) {
			continue
		}
		rec.Revoked = true
		rec.RevocationReason = reason
		records[id] = rec
		n++
	}
	return n
}
