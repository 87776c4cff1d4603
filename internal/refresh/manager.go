package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/keyline/keyline/pkg/idx"
	"github.com/keyline/keyline/pkg/jwtx"
)

// Custom claim keys linking a refresh JWT to its persisted record.
const (
	ClaimTokenID  = "token_id"
	ClaimFamilyID = "family_id"
)

// Config tunes the refresh token lifecycle policy.
type Config struct {
	// MaxLifetime of issued refresh tokens. Zero means the package
	// default of seven days.
	MaxLifetime time.Duration

	// RotationEnabled revokes a presented token on use and issues a
	// replacement in the same family. Disabled, the same token is
	// reusable until its own expiry.
	RotationEnabled bool

	// MaxTokensPerUser caps active tokens per user; exceeding it
	// revokes the earliest-created active token. Zero means no cap.
	MaxTokensPerUser int

	// RevokeOnSecurityEvent revokes an entire family when a revoked
	// token is replayed, on the assumption the lineage is stolen.
	RevokeOnSecurityEvent bool

	// FamilyID pins every issued token to one fixed family. Empty
	// means each new session starts its own family.
	FamilyID string
}

// Manager issues, redeems, and revokes refresh tokens against a Store,
// with the jwtx.TokenService handling the JWT layer.
type Manager struct {
	cfg    Config
	tokens *jwtx.TokenService
	store  Store
	log    *slog.Logger
}

// NewManager wires a Manager. A nil logger falls back to slog.Default.
func NewManager(cfg Config, tokens *jwtx.TokenService, store Store, log *slog.Logger) *Manager {
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = jwtx.DefaultRefreshTokenTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{cfg: cfg, tokens: tokens, store: store, log: log}
}

// CreateParams carries the issuance inputs for a new refresh token.
type CreateParams struct {
	UserID      string
	TenantID    string
	Roles       []string
	Permissions []string

	// FamilyID continues an existing rotation chain; empty starts a
	// new one (unless the manager pins a fixed family).
	FamilyID string

	// Client metadata persisted on the record.
	DeviceID  string
	IPAddress string
	UserAgent string
}

// TokenPair is what a successful grant returns.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    time.Duration `json:"expires_in"`
}

// CreateRefreshToken mints a refresh JWT and persists its record. The
// per-user quota is enforced in the same critical section as the
// insert, so two concurrent creations cannot both pass the check.
func (m *Manager) CreateRefreshToken(ctx context.Context, p CreateParams) (string, Record, error) {
	if p.UserID == "" {
		return "", Record{}, fmt.Errorf("%w: missing user id", jwtx.ErrTokenCreation)
	}

	now := time.Now().UTC()
	rec := Record{
		TokenID:   idx.New().String(),
		UserID:    p.UserID,
		TenantID:  p.TenantID,
		FamilyID:  m.familyID(p.FamilyID),
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.MaxLifetime),
		DeviceID:  p.DeviceID,
		IPAddress: p.IPAddress,
		UserAgent: p.UserAgent,
	}

	token, _, err := m.tokens.IssueRefreshToken(jwtx.IssueParams{
		Subject:     p.UserID,
		TenantID:    p.TenantID,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		TTL:         m.cfg.MaxLifetime,
		Custom: map[string]any{
			ClaimTokenID:  rec.TokenID,
			ClaimFamilyID: rec.FamilyID,
		},
	})
	if err != nil {
		return "", Record{}, err
	}

	err = m.store.WithTx(ctx, func(tx Store) error {
		if m.cfg.MaxTokensPerUser > 0 {
			count, err := tx.CountActive(ctx, p.UserID, now)
			if err != nil {
				return err
			}
			if count >= m.cfg.MaxTokensPerUser {
				oldest, err := tx.OldestActive(ctx, p.UserID, now)
				if err != nil {
					return err
				}
				if err := tx.RevokeToken(ctx, oldest.TokenID, ReasonQuotaExceeded); err != nil {
					return err
				}
				m.log.Info("refresh token evicted over quota",
					"user_id", p.UserID, "token_id", oldest.TokenID)
			}
		}
		return tx.CreateToken(ctx, rec)
	})
	if err != nil {
		return "", Record{}, err
	}

	return token, rec, nil
}

// RefreshRequest carries a redemption attempt.
type RefreshRequest struct {
	RefreshToken string
	DeviceID     string

	// Scopes optionally narrows the access token's permissions to a
	// subset of what the refresh token carries. Empty keeps the original
	// set. Asking for anything beyond it fails with ErrScopeNotGranted.
	Scopes []string
}

// RefreshTokens redeems a refresh token for a new access token. The
// record is authoritative: its expiry and revocation state win over
// the JWT's own claims, since revocation can shorten the effective
// lifetime. With rotation enabled the presented record is revoked
// (reason "Rotated") and a replacement in the same family is returned;
// the revoke and insert share one transaction, so replaying the old
// token can never succeed twice.
func (m *Manager) RefreshTokens(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	claims, err := m.tokens.ExtractClaims(req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if err := m.tokens.ValidateTokenType(claims, jwtx.TokenTypeRefresh); err != nil {
		return nil, err
	}

	tokenID := claims.CustomString(ClaimTokenID)
	if tokenID == "" {
		return nil, fmt.Errorf("%w: refresh token carries no record id", jwtx.ErrTokenValidation)
	}

	now := time.Now().UTC()
	rec, err := m.store.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if err := m.checkRedeemable(ctx, rec, now); err != nil {
		return nil, err
	}

	perms, err := narrowScopes(claims.Permissions, req.Scopes)
	if err != nil {
		return nil, err
	}

	accessToken, accessClaims, err := m.tokens.IssueAccessToken(jwtx.IssueParams{
		Subject:     claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       claims.Roles,
		Permissions: perms,
	})
	if err != nil {
		return nil, err
	}

	pair := &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    time.Until(accessClaims.ExpiresAt.Time),
	}

	if !m.cfg.RotationEnabled {
		return pair, nil
	}

	next := Record{
		TokenID:   idx.New().String(),
		UserID:    rec.UserID,
		TenantID:  rec.TenantID,
		FamilyID:  rec.FamilyID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.MaxLifetime),
		DeviceID:  firstNonEmpty(req.DeviceID, rec.DeviceID),
		IPAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
	}

	nextToken, _, err := m.tokens.IssueRefreshToken(jwtx.IssueParams{
		Subject:     claims.Subject,
		TenantID:    claims.TenantID,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
		TTL:         m.cfg.MaxLifetime,
		Custom: map[string]any{
			ClaimTokenID:  next.TokenID,
			ClaimFamilyID: next.FamilyID,
		},
	})
	if err != nil {
		return nil, err
	}

	// Re-check inside the transaction: a concurrent rotation of the
	// same token loses here, not after both have minted replacements.
	err = m.store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetToken(ctx, rec.TokenID)
		if err != nil {
			return err
		}
		if current.Revoked {
			return fmt.Errorf("%w: %s", ErrTokenRevoked, rec.TokenID)
		}
		if err := tx.RevokeToken(ctx, rec.TokenID, ReasonRotated); err != nil {
			return err
		}
		return tx.CreateToken(ctx, next)
	})
	if err != nil {
		return nil, err
	}

	pair.RefreshToken = nextToken
	return pair, nil
}

// checkRedeemable enforces record-level state. A replayed revoked
// token optionally burns its whole family.
func (m *Manager) checkRedeemable(ctx context.Context, rec Record, now time.Time) error {
	if rec.Revoked {
		if m.cfg.RevokeOnSecurityEvent && rec.RevocationReason == ReasonRotated {
			n, err := m.store.RevokeFamily(ctx, rec.FamilyID, ReasonSecurityEvent)
			if err != nil {
				m.log.Error("family revocation after replay failed",
					"family_id", rec.FamilyID, "err", err)
			} else if n > 0 {
				m.log.Warn("rotated token replayed, family revoked",
					"family_id", rec.FamilyID, "revoked", n)
			}
		}
		return fmt.Errorf("%w: %s", ErrTokenRevoked, rec.TokenID)
	}
	if !now.Before(rec.ExpiresAt) {
		return fmt.Errorf("%w: record expired", jwtx.ErrTokenExpired)
	}
	return nil
}

// RevokeToken revokes a single record. Empty reason defaults to a
// user-requested revocation. Idempotent on already-revoked records.
func (m *Manager) RevokeToken(ctx context.Context, tokenID, reason string) error {
	if reason == "" {
		reason = ReasonUserRequested
	}
	return m.store.RevokeToken(ctx, tokenID, reason)
}

// RevokePresentedToken revokes the record referenced by a refresh JWT.
// Used by the revocation endpoint, which receives the token itself.
func (m *Manager) RevokePresentedToken(ctx context.Context, token string) error {
	claims, err := m.tokens.ExtractClaims(token)
	if err != nil {
		return err
	}
	tokenID := claims.CustomString(ClaimTokenID)
	if tokenID == "" {
		return fmt.Errorf("%w: refresh token carries no record id", jwtx.ErrTokenValidation)
	}
	return m.RevokeToken(ctx, tokenID, ReasonUserRequested)
}

// RevokeAllUserTokens revokes every active token a user holds.
func (m *Manager) RevokeAllUserTokens(ctx context.Context, userID, reason string) (int, error) {
	if reason == "" {
		reason = ReasonUserRequested
	}
	return m.store.RevokeAllUserTokens(ctx, userID, reason)
}

// RevokeTokenFamily revokes an entire rotation chain.
func (m *Manager) RevokeTokenFamily(ctx context.Context, familyID, reason string) (int, error) {
	if reason == "" {
		reason = ReasonFamilyRevoked
	}
	return m.store.RevokeFamily(ctx, familyID, reason)
}

// CleanupExpiredTokens purges expired records. Callers schedule it;
// see Housekeeping.
func (m *Manager) CleanupExpiredTokens(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, time.Now().UTC())
}

// ListUserSessions returns a user's active records, oldest first.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]Record, error) {
	return m.store.ListActiveByUser(ctx, userID, time.Now().UTC())
}

// Lookup returns the record behind a token ID. Introspection uses it
// to fold record state into the active flag.
func (m *Manager) Lookup(ctx context.Context, tokenID string) (Record, error) {
	return m.store.GetToken(ctx, tokenID)
}

func (m *Manager) familyID(requested string) string {
	switch {
	case m.cfg.FamilyID != "":
		return m.cfg.FamilyID
	case requested != "":
		return requested
	default:
		return idx.New().String()
	}
}

// narrowScopes enforces RFC 6749 section 6: a refresh request may only
// downscope, never widen, the originally granted permissions.
func narrowScopes(granted, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return granted, nil
	}

	have := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		have[p] = struct{}{}
	}
	for _, p := range requested {
		if _, ok := have[p]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrScopeNotGranted, p)
		}
	}
	return requested, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Ping proxies to the store for readiness checks.
func (m *Manager) Ping(ctx context.Context) error { return m.store.Ping(ctx) }

// ErrIsRedeemFailure reports whether an error from RefreshTokens maps
// to a client-side failure (invalid grant) rather than a server fault.
func ErrIsRedeemFailure(err error) bool {
	return errors.Is(err, ErrTokenNotFound) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, jwtx.ErrTokenExpired) ||
		errors.Is(err, jwtx.ErrTokenValidation) ||
		errors.Is(err, jwtx.ErrInvalidTokenType)
}
