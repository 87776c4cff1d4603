package cryptox_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/keyline/keyline/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestGenerateRSAKey(t *testing.T) {
	pemBytes, err := cryptox.GenerateRSAKey(2048)
	require.NoError(t, err)

	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "PRIVATE KEY", block.Type)

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)

	rsaKey, ok := key.(*rsa.PrivateKey)
	require.True(t, ok)
	require.Equal(t, 2048, rsaKey.N.BitLen())
}

func TestGenerateRSAKey_RejectsWeakSize(t *testing.T) {
	_, err := cryptox.GenerateRSAKey(1024)
	require.Error(t, err)
}

func TestGenerateECKey(t *testing.T) {
	curves := map[string]elliptic.Curve{
		"P-256": elliptic.P256(),
		"P-384": elliptic.P384(),
	}

	for name, curve := range curves {
		t.Run(name, func(t *testing.T) {
			pemBytes, err := cryptox.GenerateECKey(curve)
			require.NoError(t, err)

			block, _ := pem.Decode(pemBytes)
			require.NotNil(t, block)

			key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			require.NoError(t, err)

			ecKey, ok := key.(*ecdsa.PrivateKey)
			require.True(t, ok)
			require.Equal(t, curve, ecKey.Curve)
		})
	}
}
