package app

import (
	"crypto/elliptic"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keyline/keyline/pkg/cryptox"
	"github.com/keyline/keyline/pkg/jwtx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitSigningKeys_EphemeralHMAC(t *testing.T) {
	keys, err := InitSigningKeys(Config{Algorithm: "HS256", KeyHistory: 3}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, keys.Current())
	require.Equal(t, jwtx.HS256, keys.Current().Algorithm())
}

func TestInitSigningKeys_InlineSecret(t *testing.T) {
	secret := cryptox.MustGenerateToken(cryptox.TokenSize256)

	keys, err := InitSigningKeys(Config{Algorithm: "HS256", SigningSecret: secret}, discardLogger())
	require.NoError(t, err)
	require.NotNil(t, keys.Current())
}

func TestInitSigningKeys_SecretTooShort(t *testing.T) {
	_, err := InitSigningKeys(Config{Algorithm: "HS256", SigningSecret: "short"}, discardLogger())
	require.ErrorIs(t, err, jwtx.ErrInvalidKey)
}

func TestInitSigningKeys_PEMFile(t *testing.T) {
	pem, err := cryptox.GenerateECKey(elliptic.P256())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, pem, 0o600))

	keys, err := InitSigningKeys(Config{Algorithm: "ES256", SigningKeyFile: path}, discardLogger())
	require.NoError(t, err)
	require.Equal(t, jwtx.ES256, keys.Current().Algorithm())
}

func TestInitSigningKeys_AsymmetricNeedsFile(t *testing.T) {
	_, err := InitSigningKeys(Config{Algorithm: "RS256"}, discardLogger())
	require.ErrorIs(t, err, jwtx.ErrInvalidKey)
}

func TestInitSigningKeys_UnknownAlgorithm(t *testing.T) {
	_, err := InitSigningKeys(Config{Algorithm: "HS1024"}, discardLogger())
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}
