package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway absorbs clock skew between the issuer and validators.
const DefaultLeeway = 30 * time.Second

// ServiceConfig configures a TokenService.
type ServiceConfig struct {
	// Keys is the signing/verification key ring. Required.
	Keys *KeyRing

	// Issuer is stamped into every token and enforced on validation.
	Issuer string

	// Audience values stamped into tokens; validation requires at least
	// one to be present. Empty means no audience handling.
	Audience []string

	// Leeway for exp/nbf validation. Zero means DefaultLeeway.
	Leeway time.Duration

	// Per-purpose TTLs. Zero values fall back to the package defaults.
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

// TokenService signs and verifies purpose-typed JWTs. It is a pure
// function over its key ring and validation policy; safe for
// unsynchronized concurrent use.
type TokenService struct {
	keys     *KeyRing
	issuer   string
	audience []string
	leeway   time.Duration
	ttls     map[TokenType]time.Duration
}

// NewTokenService builds a TokenService from config, applying defaults
// for leeway and per-purpose TTLs.
func NewTokenService(cfg ServiceConfig) (*TokenService, error) {
	if cfg.Keys == nil {
		return nil, fmt.Errorf("%w: key ring is required", ErrServiceUnavailable)
	}

	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}

	ttls := map[TokenType]time.Duration{
		TokenTypeAccess:            cfg.AccessTTL,
		TokenTypeRefresh:           cfg.RefreshTTL,
		TokenTypeEmailVerification: cfg.EmailVerificationTTL,
		TokenTypePasswordReset:     cfg.PasswordResetTTL,
	}
	defaults := map[TokenType]time.Duration{
		TokenTypeAccess:            DefaultAccessTokenTTL,
		TokenTypeRefresh:           DefaultRefreshTokenTTL,
		TokenTypeEmailVerification: DefaultEmailVerificationTokenTTL,
		TokenTypePasswordReset:     DefaultPasswordResetTokenTTL,
	}
	for typ, ttl := range ttls {
		if ttl <= 0 {
			ttls[typ] = defaults[typ]
		}
	}

	return &TokenService{
		keys:     cfg.Keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		leeway:   leeway,
		ttls:     ttls,
	}, nil
}

// Keys exposes the ring so callers can rotate signing material.
func (s *TokenService) Keys() *KeyRing { return s.keys }

// IssueParams carries the caller-supplied fields for a new token.
type IssueParams struct {
	Subject     string
	TenantID    string
	Roles       []string
	Permissions []string

	// Custom claims to embed, e.g. the refresh record ID.
	Custom map[string]any

	// TTL overrides the per-purpose default when positive.
	TTL time.Duration
}

// IssueToken mints and signs a purpose-typed token.
func (s *TokenService) IssueToken(typ TokenType, p IssueParams) (string, Claims, error) {
	ttl := p.TTL
	if ttl <= 0 {
		var ok bool
		if ttl, ok = s.ttls[typ]; !ok {
			return "", Claims{}, fmt.Errorf("%w: unknown token type %q", ErrInvalidTokenType, typ)
		}
	}

	claims := NewClaims(typ, p.Subject, p.TenantID, p.Roles, p.Permissions,
		ttl, s.issuer, s.audience, time.Now().UTC())
	claims.Custom = p.Custom

	token, err := s.CreateToken(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// IssueAccessToken mints an access token (default 1h).
func (s *TokenService) IssueAccessToken(p IssueParams) (string, Claims, error) {
	return s.IssueToken(TokenTypeAccess, p)
}

// IssueRefreshToken mints a refresh token (default 7d).
func (s *TokenService) IssueRefreshToken(p IssueParams) (string, Claims, error) {
	return s.IssueToken(TokenTypeRefresh, p)
}

// IssueEmailVerificationToken mints an email verification token (default 24h).
func (s *TokenService) IssueEmailVerificationToken(p IssueParams) (string, Claims, error) {
	return s.IssueToken(TokenTypeEmailVerification, p)
}

// IssuePasswordResetToken mints a password reset token (default 1h).
func (s *TokenService) IssuePasswordResetToken(p IssueParams) (string, Claims, error) {
	return s.IssueToken(TokenTypePasswordReset, p)
}

// CreateToken signs arbitrary claims with the current key. Pure
// operation; the only side effect is CPU. Claims must satisfy the
// issuance invariants (exp > iat, nbf ≤ exp).
func (s *TokenService) CreateToken(claims Claims) (string, error) {
	if err := claims.wellFormed(); err != nil {
		return "", err
	}

	km := s.keys.Current()
	key, err := km.EncodingKey()
	if err != nil {
		return "", err
	}

	t := jwt.NewWithClaims(km.Algorithm().SigningMethod(), claims)
	signed, err := t.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenCreation, err)
	}
	return signed, nil
}

// ValidateToken verifies the signature against the key ring
// (newest-first, for rotation continuity), then enforces issuer,
// audience, and expiry. All signature/format/claim failures collapse
// into ErrTokenValidation; only expiry surfaces as ErrTokenExpired.
func (s *TokenService) ValidateToken(token string) (Claims, error) {
	claims, err := s.verifySignature(token)
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateIssuer(s.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(s.audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(s.leeway); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

// ExtractClaims decodes a token while skipping expiry, issuer, and
// audience validation. The signature is still verified; never treat
// this as a substitute for ValidateToken in authorization decisions.
// The refresh flow and introspection use it to inspect tokens whose
// record-level state is authoritative.
func (s *TokenService) ExtractClaims(token string) (Claims, error) {
	return s.verifySignature(token)
}

// ValidateTokenType cross-checks the token_type claim, blocking
// access/refresh confusion.
func (s *TokenService) ValidateTokenType(claims Claims, want TokenType) error {
	if claims.TokenType != want {
		return fmt.Errorf("%w: want %q, got %q", ErrInvalidTokenType, want, claims.TokenType)
	}
	return nil
}

// verifySignature parses the compact token and checks its signature
// against each manager in the ring, newest first. Claim validation is
// deliberately left to the caller.
func (s *TokenService) verifySignature(token string) (Claims, error) {
	var lastErr error

	for _, km := range s.keys.Managers() {
		parser := jwt.NewParser(
			jwt.WithValidMethods([]string{km.Algorithm().String()}),
			jwt.WithoutClaimsValidation(),
		)

		parsed, err := parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
			return km.DecodingKey()
		})
		if err != nil {
			// ErrServiceUnavailable from DecodingKey must not be masked
			// as a validation failure.
			if errors.Is(err, ErrServiceUnavailable) {
				return Claims{}, fmt.Errorf("%w: no decoding key", ErrServiceUnavailable)
			}
			lastErr = err
			continue
		}

		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid {
			lastErr = errors.New("unexpected claims type")
			continue
		}
		return *claims, nil
	}

	return Claims{}, fmt.Errorf("%w: %v", ErrTokenValidation, lastErr)
}
