package jwtx

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType marks what a token is for. Cross-checking it during
// validation blocks access/refresh confusion.
type TokenType string

const (
	TokenTypeAccess            TokenType = "access"
	TokenTypeRefresh           TokenType = "refresh"
	TokenTypeEmailVerification TokenType = "email_verification"
	TokenTypePasswordReset     TokenType = "password_reset"
)

// Default token TTLs per purpose. All overridable per issuance.
const (
	DefaultAccessTokenTTL            = 1 * time.Hour
	DefaultRefreshTokenTTL           = 7 * 24 * time.Hour
	DefaultEmailVerificationTokenTTL = 24 * time.Hour
	DefaultPasswordResetTokenTTL     = 1 * time.Hour
)

// Claims is the structured token payload used across the module. Once
// signed into a token it is immutable; a copy parsed out of a token is
// owned by the caller.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID scopes the token to one tenant for multi-tenant APIs.
	TenantID string `json:"tid,omitempty"`

	// Roles held by the subject, e.g. ["admin", "editor"].
	Roles []string `json:"roles,omitempty"`

	// Permissions granted to the subject, e.g. ["tokens:issue"].
	Permissions []string `json:"perms,omitempty"`

	// TokenType marks the purpose this token was minted for.
	TokenType TokenType `json:"token_type,omitempty"`

	// Custom carries application-specific claims. The refresh manager
	// uses it for the record ID and family ID.
	Custom map[string]any `json:"custom,omitempty"`
}

// NewClaims builds minimally-correct claims for a purpose-typed token.
// iat and nbf are set to now, exp to now+ttl, and jti to a fresh UUID.
func NewClaims(
	typ TokenType,
	subject, tenantID string,
	roles, permissions []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		TenantID:    tenantID,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   typ,
	}
}

// HasRole reports whether the claims carry the given role.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasAnyRole reports whether the claims carry at least one of the roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// HasPermission reports whether the claims carry the given permission.
func (c *Claims) HasPermission(perm string) bool {
	return slices.Contains(c.Permissions, perm)
}

// RequirePermissions fails with ErrInsufficientPermissions unless every
// listed permission is present.
func (c *Claims) RequirePermissions(perms ...string) error {
	for _, p := range perms {
		if !c.HasPermission(p) {
			return fmt.Errorf("%w: missing %q", ErrInsufficientPermissions, p)
		}
	}
	return nil
}

// CustomString reads a string-valued custom claim. Returns "" when the
// claim is absent or not a string.
func (c *Claims) CustomString(key string) string {
	if c.Custom == nil {
		return ""
	}
	s, _ := c.Custom[key].(string)
	return s
}

// ValidateIssuer checks the issuer matches the expected value. An empty
// expectation enforces nothing.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return fmt.Errorf("%w: issuer mismatch", ErrTokenValidation)
	}
	return nil
}

// ValidateAudience checks at least one expected audience is present. An
// empty expectation enforces nothing.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return fmt.Errorf("%w: audience mismatch", ErrTokenValidation)
}

// ValidateExpiry ensures the token has not expired (exp) and is not used
// before it becomes valid (nbf), allowing leeway for clock skew.
func (c *Claims) ValidateExpiry(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrTokenExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return fmt.Errorf("%w: token not yet valid", ErrTokenValidation)
	}

	return nil
}

// wellFormed checks the structural invariants enforced at issuance:
// exp must be after iat, and nbf (when present) must not be after exp.
func (c *Claims) wellFormed() error {
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return fmt.Errorf("%w: exp and iat are required", ErrTokenCreation)
	}
	if !c.ExpiresAt.After(c.IssuedAt.Time) {
		return fmt.Errorf("%w: exp must be after iat", ErrTokenCreation)
	}
	if c.NotBefore != nil && c.NotBefore.After(c.ExpiresAt.Time) {
		return fmt.Errorf("%w: nbf must not be after exp", ErrTokenCreation)
	}
	return nil
}
