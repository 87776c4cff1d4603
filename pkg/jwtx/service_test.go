package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg jwtx.ServiceConfig) *jwtx.TokenService {
	t.Helper()

	if cfg.Keys == nil {
		km, err := jwtx.NewKeyManager(jwtx.HS256, hmacSecret(32))
		require.NoError(t, err)
		cfg.Keys = jwtx.NewKeyRing(km, 0)
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "keyline-test"
	}

	svc, err := jwtx.NewTokenService(cfg)
	require.NoError(t, err)
	return svc
}

// tamperSignature flips one character in the signature segment.
func tamperSignature(t *testing.T, token string) string {
	t.Helper()

	i := strings.LastIndex(token, ".")
	require.Positive(t, i)

	sig := []byte(token[i+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	return token[:i+1] + string(sig)
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{Audience: []string{"api"}})

	token, issued, err := svc.IssueAccessToken(jwtx.IssueParams{
		Subject:     "user-1",
		TenantID:    "t1",
		Roles:       []string{"admin"},
		Permissions: []string{"tokens:issue"},
		Custom:      map[string]any{"device_id": "laptop"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, strings.Count(token, ".")+1, "compact serialization has three segments")

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.Equal(t, issued.Subject, claims.Subject)
	require.Equal(t, issued.TenantID, claims.TenantID)
	require.Equal(t, issued.Issuer, claims.Issuer)
	require.Equal(t, issued.ID, claims.ID)
	require.Equal(t, issued.TokenType, claims.TokenType)
	require.ElementsMatch(t, issued.Roles, claims.Roles)
	require.ElementsMatch(t, issued.Permissions, claims.Permissions)
	require.ElementsMatch(t, issued.Audience, claims.Audience)
	require.Equal(t, issued.ExpiresAt.Unix(), claims.ExpiresAt.Unix())
	require.Equal(t, issued.IssuedAt.Unix(), claims.IssuedAt.Unix())
	require.Equal(t, issued.NotBefore.Unix(), claims.NotBefore.Unix())
	require.Equal(t, "laptop", claims.CustomString("device_id"))

	require.True(t, claims.HasRole("admin"))
	require.Equal(t, "t1", claims.TenantID)
}

func TestTokenService_RoundTrip_AllAlgorithms(t *testing.T) {
	secrets := map[jwtx.Algorithm][]byte{
		jwtx.HS256: hmacSecret(32),
		jwtx.HS384: hmacSecret(48),
		jwtx.HS512: hmacSecret(64),
	}

	for alg, secret := range secrets {
		t.Run(alg.String(), func(t *testing.T) {
			km, err := jwtx.NewKeyManager(alg, secret)
			require.NoError(t, err)
			svc := newTestService(t, jwtx.ServiceConfig{Keys: jwtx.NewKeyRing(km, 0)})

			token, _, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
			require.NoError(t, err)

			claims, err := svc.ValidateToken(token)
			require.NoError(t, err)
			require.Equal(t, "user-1", claims.Subject)
		})
	}
}

func TestTokenService_PurposeTTLs(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{})

	tests := []struct {
		typ  jwtx.TokenType
		want time.Duration
	}{
		{jwtx.TokenTypeAccess, time.Hour},
		{jwtx.TokenTypeRefresh, 7 * 24 * time.Hour},
		{jwtx.TokenTypeEmailVerification, 24 * time.Hour},
		{jwtx.TokenTypePasswordReset, time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			_, claims, err := svc.IssueToken(tt.typ, jwtx.IssueParams{Subject: "user-1"})
			require.NoError(t, err)
			require.Equal(t, tt.typ, claims.TokenType)

			lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
			require.Equal(t, tt.want, lifetime)
		})
	}
}

func TestTokenService_TTLOverride(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{})

	_, claims, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1", TTL: 5 * time.Minute})
	require.NoError(t, err)
	require.Equal(t, 5*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	// Near-zero leeway so the boundary is sharp.
	svc := newTestService(t, jwtx.ServiceConfig{Leeway: time.Millisecond})

	now := time.Now().UTC()
	expired := jwtx.NewClaims(jwtx.TokenTypeAccess, "user-1", "t1",
		[]string{"admin"}, nil, time.Hour, "keyline-test", nil, now.Add(-2*time.Hour))
	// exp is now-1s: past the boundary.
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))

	token, err := svc.CreateToken(expired)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.ErrorIs(t, err, jwtx.ErrTokenExpired)
}

func TestTokenService_LeewayAbsorbsSkew(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{Leeway: 30 * time.Second})

	now := time.Now().UTC()
	claims := jwtx.NewClaims(jwtx.TokenTypeAccess, "user-1", "",
		nil, nil, time.Hour, "keyline-test", nil, now.Add(-time.Hour))
	// Expired 10s ago, inside the 30s leeway window.
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(-10 * time.Second))

	token, err := svc.CreateToken(claims)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.NoError(t, err)
}

func TestTokenService_TamperedSignature(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{})

	token, _, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(tamperSignature(t, token))
	require.ErrorIs(t, err, jwtx.ErrTokenValidation)
}

func TestTokenService_ValidationFailuresAreGeneric(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{Audience: []string{"api"}})

	otherKM, err := jwtx.NewKeyManager(jwtx.HS256, []byte(strings.Repeat("x", 32)))
	require.NoError(t, err)
	otherSvc := newTestService(t, jwtx.ServiceConfig{Keys: jwtx.NewKeyRing(otherKM, 0)})

	wrongIssuer := newTestService(t, jwtx.ServiceConfig{Issuer: "someone-else"})

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name:  "malformed string",
			token: func() string { return "definitely.not.a-jwt" },
		},
		{
			name:  "empty string",
			token: func() string { return "" },
		},
		{
			name: "wrong signing key",
			token: func() string {
				tok, _, err := otherSvc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "wrong issuer",
			token: func() string {
				// Same key, different issuer claim.
				tok, _, err := wrongIssuer.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
				require.NoError(t, err)
				return tok
			},
		},
		{
			name: "missing audience",
			token: func() string {
				now := time.Now().UTC()
				c := jwtx.NewClaims(jwtx.TokenTypeAccess, "user-1", "",
					nil, nil, time.Hour, "keyline-test", nil, now)
				tok, err := svc.CreateToken(c)
				require.NoError(t, err)
				return tok
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token())
			require.ErrorIs(t, err, jwtx.ErrTokenValidation)
			require.NotErrorIs(t, err, jwtx.ErrTokenExpired)
		})
	}
}

func TestTokenService_ValidateTokenType(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{})

	_, access, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	require.NoError(t, svc.ValidateTokenType(access, jwtx.TokenTypeAccess))
	require.ErrorIs(t, svc.ValidateTokenType(access, jwtx.TokenTypeRefresh), jwtx.ErrInvalidTokenType)
}

func TestTokenService_ExtractClaims(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{Leeway: time.Millisecond})

	t.Run("skips expiry but keeps signature check", func(t *testing.T) {
		now := time.Now().UTC()
		c := jwtx.NewClaims(jwtx.TokenTypeRefresh, "user-1", "t1",
			nil, nil, time.Minute, "keyline-test", nil, now.Add(-time.Hour))
		c.Custom = map[string]any{"token_id": "rec-1"}

		token, err := svc.CreateToken(c)
		require.NoError(t, err)

		// Regular validation rejects it as expired.
		_, err = svc.ValidateToken(token)
		require.ErrorIs(t, err, jwtx.ErrTokenExpired)

		// Extraction still works and preserves the payload.
		claims, err := svc.ExtractClaims(token)
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
		require.Equal(t, "rec-1", claims.CustomString("token_id"))
	})

	t.Run("rejects tampered tokens", func(t *testing.T) {
		token, _, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
		require.NoError(t, err)

		_, err = svc.ExtractClaims(tamperSignature(t, token))
		require.ErrorIs(t, err, jwtx.ErrTokenValidation)
	})
}

func TestTokenService_KeyRotationContinuity(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.HS256, hmacSecret(32))
	require.NoError(t, err)
	ring := jwtx.NewKeyRing(km, 1)
	svc := newTestService(t, jwtx.ServiceConfig{Keys: ring})

	oldToken, _, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-1"})
	require.NoError(t, err)

	// Rotate: the pre-rotation token must still verify via the ring.
	require.NoError(t, ring.Rotate([]byte(strings.Repeat("r", 32))))
	_, err = svc.ValidateToken(oldToken)
	require.NoError(t, err)

	// New tokens sign with the new key and verify too.
	newToken, _, err := svc.IssueAccessToken(jwtx.IssueParams{Subject: "user-2"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(newToken)
	require.NoError(t, err)

	// One more rotation pushes the original key off the bounded ring.
	require.NoError(t, ring.Rotate([]byte(strings.Repeat("s", 32))))
	_, err = svc.ValidateToken(oldToken)
	require.ErrorIs(t, err, jwtx.ErrTokenValidation)
}

// The concrete end-to-end scenario: issue for (user-1, t1, admin),
// validate, check the payload, then check the expiry failure mode.
func TestTokenService_AdminTokenScenario(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{Leeway: time.Millisecond})

	token, _, err := svc.IssueAccessToken(jwtx.IssueParams{
		Subject:  "user-1",
		TenantID: "t1",
		Roles:    []string{"admin"},
		TTL:      time.Hour,
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Contains(t, claims.Roles, "admin")
	require.Equal(t, "t1", claims.TenantID)

	// Re-mint the same payload already expired.
	now := time.Now().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now.Add(-time.Hour))
	claims.NotBefore = jwt.NewNumericDate(now.Add(-time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Second))

	expiredToken, err := svc.CreateToken(claims)
	require.NoError(t, err)

	_, err = svc.ValidateToken(expiredToken)
	require.ErrorIs(t, err, jwtx.ErrTokenExpired)
}

func TestNewTokenService_RequiresKeys(t *testing.T) {
	_, err := jwtx.NewTokenService(jwtx.ServiceConfig{})
	require.ErrorIs(t, err, jwtx.ErrServiceUnavailable)
}

func TestTokenService_CreateToken_EnforcesInvariants(t *testing.T) {
	svc := newTestService(t, jwtx.ServiceConfig{})
	now := time.Now().UTC()

	t.Run("exp before iat", func(t *testing.T) {
		c := jwtx.NewClaims(jwtx.TokenTypeAccess, "u", "", nil, nil, time.Hour, "keyline-test", nil, now)
		c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
		c.NotBefore = nil

		_, err := svc.CreateToken(c)
		require.ErrorIs(t, err, jwtx.ErrTokenCreation)
	})

	t.Run("nbf after exp", func(t *testing.T) {
		c := jwtx.NewClaims(jwtx.TokenTypeAccess, "u", "", nil, nil, time.Hour, "keyline-test", nil, now)
		c.NotBefore = jwt.NewNumericDate(now.Add(2 * time.Hour))

		_, err := svc.CreateToken(c)
		require.ErrorIs(t, err, jwtx.ErrTokenCreation)
	})

	t.Run("missing exp", func(t *testing.T) {
		var c jwtx.Claims
		c.Subject = "u"

		_, err := svc.CreateToken(c)
		require.ErrorIs(t, err, jwtx.ErrTokenCreation)
	})
}
