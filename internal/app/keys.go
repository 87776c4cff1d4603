package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/keyline/keyline/pkg/jwtx"
)

// InitSigningKeys builds the signing key ring from config.
//
// Key sources, in order of preference:
//   - SigningKeyFile: PEM material, required for RSA and ECDSA.
//   - SigningSecret: inline HMAC secret, at least the algorithm's
//     minimum length (32/48/64 bytes for HS256/384/512).
//   - Neither: a random ephemeral HMAC secret. Every token becomes
//     invalid when the process restarts.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*jwtx.KeyRing, error) {
	alg, err := jwtx.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	var km *jwtx.KeyManager
	switch {
	case cfg.SigningKeyFile != "":
		pem, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read signing key file: %w", err)
		}
		km, err = jwtx.NewKeyManager(alg, pem)
		if err != nil {
			return nil, err
		}
		logger.Info("signing key loaded", "algorithm", alg, "file", cfg.SigningKeyFile)

	case cfg.SigningSecret != "":
		km, err = jwtx.NewKeyManager(alg, []byte(cfg.SigningSecret))
		if err != nil {
			return nil, err
		}
		logger.Info("signing key loaded from secret", "algorithm", alg)

	default:
		if alg.Family() != jwtx.FamilyHMAC {
			return nil, fmt.Errorf("%w: %s requires a signing key file", jwtx.ErrInvalidKey, alg)
		}
		km, err = jwtx.NewRandomKeyManager(alg)
		if err != nil {
			return nil, err
		}
		logger.Warn("ephemeral signing key generated, all existing tokens are now invalid",
			"algorithm", alg)
	}

	return jwtx.NewKeyRing(km, cfg.KeyHistory), nil
}
