package jwtx_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"strings"
	"testing"

	"github.com/keyline/keyline/pkg/cryptox"
	"github.com/keyline/keyline/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func hmacSecret(n int) []byte {
	return []byte(strings.Repeat("k", n))
}

func TestNewKeyManager_HMAC(t *testing.T) {
	tests := []struct {
		name    string
		alg     jwtx.Algorithm
		secret  []byte
		wantErr error
	}{
		{name: "HS256 exact minimum", alg: jwtx.HS256, secret: hmacSecret(32)},
		{name: "HS256 above minimum", alg: jwtx.HS256, secret: hmacSecret(64)},
		{name: "HS384 exact minimum", alg: jwtx.HS384, secret: hmacSecret(48)},
		{name: "HS512 exact minimum", alg: jwtx.HS512, secret: hmacSecret(64)},
		{name: "HS256 one byte short", alg: jwtx.HS256, secret: hmacSecret(31), wantErr: jwtx.ErrInvalidKey},
		{name: "HS384 too short", alg: jwtx.HS384, secret: hmacSecret(32), wantErr: jwtx.ErrInvalidKey},
		{name: "HS512 too short", alg: jwtx.HS512, secret: hmacSecret(48), wantErr: jwtx.ErrInvalidKey},
		{name: "empty secret", alg: jwtx.HS256, secret: nil, wantErr: jwtx.ErrInvalidKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			km, err := jwtx.NewKeyManager(tt.alg, tt.secret)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.alg, km.Algorithm())

			enc, err := km.EncodingKey()
			require.NoError(t, err)
			dec, err := km.DecodingKey()
			require.NoError(t, err)
			require.Equal(t, enc, dec, "HMAC uses the secret for both directions")
		})
	}
}

func TestNewKeyManager_Asymmetric(t *testing.T) {
	rsaPEM, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)
	ecPEM256, err := cryptox.GenerateECKey(elliptic.P256())
	require.NoError(t, err)
	ecPEM384, err := cryptox.GenerateECKey(elliptic.P384())
	require.NoError(t, err)

	t.Run("RS256 from PEM", func(t *testing.T) {
		km, err := jwtx.NewKeyManager(jwtx.RS256, rsaPEM)
		require.NoError(t, err)

		enc, err := km.EncodingKey()
		require.NoError(t, err)
		_, ok := enc.(*rsa.PrivateKey)
		require.True(t, ok)

		dec, err := km.DecodingKey()
		require.NoError(t, err)
		_, ok = dec.(*rsa.PublicKey)
		require.True(t, ok)
	})

	t.Run("ES256 from PEM", func(t *testing.T) {
		km, err := jwtx.NewKeyManager(jwtx.ES256, ecPEM256)
		require.NoError(t, err)

		enc, err := km.EncodingKey()
		require.NoError(t, err)
		_, ok := enc.(*ecdsa.PrivateKey)
		require.True(t, ok)
	})

	t.Run("ES384 from PEM", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.ES384, ecPEM384)
		require.NoError(t, err)
	})

	t.Run("RSA algorithm with EC material", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.RS256, ecPEM256)
		require.ErrorIs(t, err, jwtx.ErrInvalidKey)
	})

	t.Run("EC algorithm with RSA material", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.ES256, rsaPEM)
		require.ErrorIs(t, err, jwtx.ErrInvalidKey)
	})

	t.Run("garbage PEM", func(t *testing.T) {
		_, err := jwtx.NewKeyManager(jwtx.RS256, []byte("not a pem"))
		require.ErrorIs(t, err, jwtx.ErrInvalidKey)
	})
}

func TestNewKeyManager_UnsupportedAlgorithm(t *testing.T) {
	_, err := jwtx.NewKeyManager(jwtx.Algorithm("none"), hmacSecret(32))
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}

func TestNewRandomKeyManager(t *testing.T) {
	t.Run("HMAC generation", func(t *testing.T) {
		km, err := jwtx.NewRandomKeyManager(jwtx.HS256)
		require.NoError(t, err)

		enc, err := km.EncodingKey()
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(enc.([]byte)), 32)
	})

	t.Run("asymmetric generation is deferred", func(t *testing.T) {
		for _, alg := range []jwtx.Algorithm{jwtx.RS256, jwtx.RS512, jwtx.ES256, jwtx.ES384} {
			_, err := jwtx.NewRandomKeyManager(alg)
			require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm, alg)
		}
	})
}

func TestKeyManager_Rotate(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.HS256, hmacSecret(32))
	require.NoError(t, err)

	before, err := km.EncodingKey()
	require.NoError(t, err)

	require.NoError(t, km.Rotate([]byte(strings.Repeat("n", 32))))

	after, err := km.EncodingKey()
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	// A bad rotation must leave the current pair untouched.
	require.ErrorIs(t, km.Rotate(hmacSecret(8)), jwtx.ErrInvalidKey)
	unchanged, err := km.EncodingKey()
	require.NoError(t, err)
	require.Equal(t, after, unchanged)
}

func TestParseAlgorithm(t *testing.T) {
	for _, s := range []string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "ES256", "ES384"} {
		alg, err := jwtx.ParseAlgorithm(s)
		require.NoError(t, err)
		require.Equal(t, s, alg.String())
		require.NotNil(t, alg.SigningMethod())
	}

	_, err := jwtx.ParseAlgorithm("EdDSA")
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)

	_, err = jwtx.ParseAlgorithm("")
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}

func TestKeyRing_Rotation(t *testing.T) {
	km, err := jwtx.NewKeyManager(jwtx.HS256, hmacSecret(32))
	require.NoError(t, err)

	ring := jwtx.NewKeyRing(km, 2)
	require.Same(t, km, ring.Current())
	require.Len(t, ring.Managers(), 1)

	require.NoError(t, ring.Rotate([]byte(strings.Repeat("a", 32))))
	require.NotSame(t, km, ring.Current())
	require.Len(t, ring.Managers(), 2)

	// History is bounded at limit+1 managers, newest first.
	require.NoError(t, ring.Rotate([]byte(strings.Repeat("b", 32))))
	require.NoError(t, ring.Rotate([]byte(strings.Repeat("c", 32))))
	managers := ring.Managers()
	require.Len(t, managers, 3)
	require.Same(t, ring.Current(), managers[0])

	// Rotating with a weak secret fails and leaves the ring intact.
	require.ErrorIs(t, ring.Rotate(hmacSecret(4)), jwtx.ErrInvalidKey)
	require.Len(t, ring.Managers(), 3)
}
