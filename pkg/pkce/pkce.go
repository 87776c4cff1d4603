// Package pkce implements RFC 7636 proof key for code exchange:
// verifier/challenge generation for clients and challenge verification
// for the token endpoint.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/keyline/keyline/pkg/cryptox"
)

// Method identifies the code challenge transformation.
type Method string

const (
	// MethodS256 is BASE64URL(SHA256(verifier)). The default and the
	// only method clients should send.
	MethodS256 Method = "S256"

	// MethodPlain compares the verifier to the challenge directly.
	// Kept for legacy clients only.
	MethodPlain Method = "plain"
)

// Verifier length bounds per RFC 7636 section 4.1.
const (
	MinVerifierLen = 43
	MaxVerifierLen = 128
)

var (
	// ErrInvalidRequest covers malformed verifiers, challenges, and
	// unknown methods.
	ErrInvalidRequest = errors.New("pkce: invalid request")

	// ErrVerificationFailed means the verifier does not match the
	// stored challenge.
	ErrVerificationFailed = errors.New("pkce: verification failed")
)

// Challenge holds a verifier/challenge pair. The verifier stays with
// the client; the challenge goes to the authorization endpoint.
type Challenge struct {
	Verifier  string
	Challenge string
	Method    Method
}

// Generate creates a fresh S256 verifier/challenge pair. The verifier
// is 32 random bytes base64url-encoded without padding, which lands at
// exactly 43 characters.
func Generate() (*Challenge, error) {
	verifier, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, fmt.Errorf("generate verifier: %w", err)
	}

	return &Challenge{
		Verifier:  verifier,
		Challenge: ComputeChallenge(verifier),
		Method:    MethodS256,
	}, nil
}

// ComputeChallenge derives the S256 challenge for a verifier:
// BASE64URL(SHA256(verifier)), no padding.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ParseMethod normalizes a code_challenge_method parameter. An empty
// value defaults to S256.
func ParseMethod(s string) (Method, error) {
	switch {
	case s == "" || strings.EqualFold(s, string(MethodS256)):
		return MethodS256, nil
	case strings.EqualFold(s, string(MethodPlain)):
		return MethodPlain, nil
	default:
		return "", fmt.Errorf("%w: unknown challenge method %q", ErrInvalidRequest, s)
	}
}

// ValidateVerifier enforces the RFC 7636 verifier grammar: 43 to 128
// characters from the unreserved set [A-Za-z0-9-._~].
func ValidateVerifier(verifier string) error {
	if len(verifier) < MinVerifierLen || len(verifier) > MaxVerifierLen {
		return fmt.Errorf("%w: verifier length %d outside [%d, %d]",
			ErrInvalidRequest, len(verifier), MinVerifierLen, MaxVerifierLen)
	}
	for i := 0; i < len(verifier); i++ {
		if !isUnreserved(verifier[i]) {
			return fmt.Errorf("%w: verifier contains invalid character at position %d",
				ErrInvalidRequest, i)
		}
	}
	return nil
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

// VerifyChallenge checks a verifier against a stored challenge using
// constant-time comparison. The verifier grammar is enforced first so
// oversized or malformed input is rejected before any hashing.
func VerifyChallenge(challenge string, method Method, verifier string) error {
	if err := ValidateVerifier(verifier); err != nil {
		return err
	}

	switch method {
	case MethodS256:
		expected := ComputeChallenge(verifier)
		if subtle.ConstantTimeCompare([]byte(challenge), []byte(expected)) != 1 {
			return ErrVerificationFailed
		}
	case MethodPlain:
		if subtle.ConstantTimeCompare([]byte(challenge), []byte(verifier)) != 1 {
			return ErrVerificationFailed
		}
	default:
		return fmt.Errorf("%w: unknown challenge method %q", ErrInvalidRequest, method)
	}
	return nil
}
