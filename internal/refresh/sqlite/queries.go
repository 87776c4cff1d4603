package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/keyline/keyline/internal/refresh"
)

// queries holds the hand-written SQL shared by the root store and its
// transaction views.
type queries struct {
	db querier
}

const recordColumns = `token_id, user_id, tenant_id, family_id, created_at, expires_at,
	device_id, ip_address, user_agent, revoked, revocation_reason`

func (q queries) createToken(ctx context.Context, rec refresh.Record) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TokenID, rec.UserID, rec.TenantID, rec.FamilyID,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(),
		rec.DeviceID, rec.IPAddress, rec.UserAgent,
		rec.Revoked, rec.RevocationReason,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", refresh.ErrAlreadyExists, rec.TokenID)
	}
	return err
}

func (q queries) getToken(ctx context.Context, tokenID string) (refresh.Record, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens WHERE token_id = ?`, tokenID)
	return scanRecord(row, tokenID)
}

func (q queries) countActive(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?`,
		userID, now.UTC(),
	).Scan(&n)
	return n, err
}

func (q queries) oldestActive(ctx context.Context, userID string, now time.Time) (refresh.Record, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		ORDER BY created_at ASC LIMIT 1`,
		userID, now.UTC())
	return scanRecord(row, userID)
}

func (q queries) listActiveByUser(ctx context.Context, userID string, now time.Time) ([]refresh.Record, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM refresh_tokens
		WHERE user_id = ? AND revoked = 0 AND expires_at > ?
		ORDER BY created_at ASC`,
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []refresh.Record
	for rows.Next() {
		var rec refresh.Record
		if err := rows.Scan(
			&rec.TokenID, &rec.UserID, &rec.TenantID, &rec.FamilyID,
			&rec.CreatedAt, &rec.ExpiresAt,
			&rec.DeviceID, &rec.IPAddress, &rec.UserAgent,
			&rec.Revoked, &rec.RevocationReason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// revokeToken is idempotent: the revoked = 0 guard keeps the first
// reason once a record is terminal.
func (q queries) revokeToken(ctx context.Context, tokenID, reason string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revocation_reason = ?
		WHERE token_id = ? AND revoked = 0`,
		reason, tokenID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Distinguish missing from already-revoked.
		var exists int
		err := q.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM refresh_tokens WHERE token_id = ?`, tokenID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", refresh.ErrTokenNotFound, tokenID)
		}
	}
	return nil
}

func (q queries) revokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revocation_reason = ?
		WHERE user_id = ? AND revoked = 0`,
		reason, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q queries) revokeFamily(ctx context.Context, familyID, reason string) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revocation_reason = ?
		WHERE family_id = ? AND revoked = 0`,
		reason, familyID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q queries) deleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, key string) (refresh.Record, error) {
	var rec refresh.Record
	err := row.Scan(
		&rec.TokenID, &rec.UserID, &rec.TenantID, &rec.FamilyID,
		&rec.CreatedAt, &rec.ExpiresAt,
		&rec.DeviceID, &rec.IPAddress, &rec.UserAgent,
		&rec.Revoked, &rec.RevocationReason,
	)
	if err != nil {
		return refresh.Record{}, mapNotFound(err, key)
	}
	return rec, nil
}
