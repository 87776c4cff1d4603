// Package introspect implements RFC 7662 token introspection. The
// contract is deliberate: introspection never fails loudly. Any
// problem with a token, from a malformed string to a revoked refresh
// record, yields {active:false} with no further detail, so callers
// cannot distinguish why a token is inactive.
package introspect

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/keyline/keyline/internal/refresh"
	"github.com/keyline/keyline/pkg/jwtx"
)

// Response is the RFC 7662 introspection JSON shape. When active is
// false every other field is omitted.
type Response struct {
	Active bool `json:"active"`

	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Username  string   `json:"username,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Exp       int64    `json:"exp,omitempty"`
	Iat       int64    `json:"iat,omitempty"`
	Nbf       int64    `json:"nbf,omitempty"`
	Sub       string   `json:"sub,omitempty"`
	Aud       []string `json:"aud,omitempty"`
	Iss       string   `json:"iss,omitempty"`
	Jti       string   `json:"jti,omitempty"`
	TenantID  string   `json:"tid,omitempty"`
}

// Inactive is the minimal response for any token that cannot be
// confirmed active.
func Inactive() Response { return Response{Active: false} }

// Request carries an introspection attempt.
type Request struct {
	Token string
	// TokenTypeHint is the RFC 7662 token_type_hint parameter. An
	// unknown hint yields an inactive response, not an error.
	TokenTypeHint string
}

// Service resolves introspection requests against the token service
// and, for refresh tokens, the record store.
type Service struct {
	tokens  *jwtx.TokenService
	records *refresh.Manager
	log     *slog.Logger
}

// New wires a Service. records may be nil when refresh-record lookups
// are not wanted; refresh tokens then introspect on claims alone.
func New(tokens *jwtx.TokenService, records *refresh.Manager, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{tokens: tokens, records: records, log: log}
}

// Introspect resolves a token to its RFC 7662 projection. It never
// returns an error.
func (s *Service) Introspect(ctx context.Context, req Request) Response {
	if req.Token == "" {
		return Inactive()
	}

	switch req.TokenTypeHint {
	case "", "access_token", "refresh_token":
	default:
		return Inactive()
	}

	// Signature first; expiry is checked against the claims below so
	// an expired-but-authentic token still parses.
	claims, err := s.tokens.ExtractClaims(req.Token)
	if err != nil {
		s.log.Debug("introspection rejected token", "err", err)
		return Inactive()
	}

	if err := claims.ValidateExpiry(0); err != nil {
		return Inactive()
	}

	// Refresh tokens fold in record state: a revoked or purged record
	// makes the token inactive regardless of its JWT validity.
	if claims.TokenType == jwtx.TokenTypeRefresh && s.records != nil {
		tokenID := claims.CustomString(refresh.ClaimTokenID)
		if tokenID == "" {
			return Inactive()
		}
		rec, err := s.records.Lookup(ctx, tokenID)
		if err != nil || !rec.Active(time.Now().UTC()) {
			return Inactive()
		}
	}

	return project(claims)
}

// IsTokenActive reports only the boolean.
func (s *Service) IsTokenActive(ctx context.Context, token string) bool {
	return s.Introspect(ctx, Request{Token: token}).Active
}

// ActiveClaims returns the claims behind a token when it is active.
func (s *Service) ActiveClaims(ctx context.Context, token string) (jwtx.Claims, bool) {
	if !s.IsTokenActive(ctx, token) {
		return jwtx.Claims{}, false
	}
	claims, err := s.tokens.ExtractClaims(token)
	if err != nil {
		return jwtx.Claims{}, false
	}
	return claims, true
}

// project echoes the registered claims verbatim per RFC 7662.
func project(claims jwtx.Claims) Response {
	resp := Response{
		Active:    true,
		TokenType: "Bearer",
		Sub:       claims.Subject,
		Iss:       claims.Issuer,
		Jti:       claims.ID,
		TenantID:  claims.TenantID,
		Scope:     strings.Join(claims.Permissions, " "),
	}

	if len(claims.Audience) > 0 {
		resp.ClientID = claims.Audience[0]
		resp.Aud = claims.Audience
	}
	if claims.ExpiresAt != nil {
		resp.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		resp.Iat = claims.IssuedAt.Unix()
	}
	if claims.NotBefore != nil {
		resp.Nbf = claims.NotBefore.Unix()
	}
	return resp
}
