package jwtx

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keyline/keyline/pkg/cryptox"
)

// keyPair is an immutable encoding/decoding key pair. Rotation swaps a
// whole new pair so concurrent readers observe wholly-old or wholly-new
// material, never a torn mix.
type keyPair struct {
	encoding any
	decoding any
}

// KeyManager maps one algorithm to its encoding and decoding key
// material. Symmetric algorithms use the secret directly; asymmetric
// algorithms parse it as PEM. The pair is immutable after construction
// except through Rotate.
type KeyManager struct {
	alg  Algorithm
	pair atomic.Pointer[keyPair]
}

// NewKeyManager builds a KeyManager for the given algorithm from raw
// secret bytes (HMAC) or PEM material (RSA/ECDSA). Key material that
// does not match the algorithm family fails with ErrInvalidKey.
func NewKeyManager(alg Algorithm, secret []byte) (*KeyManager, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}

	pair, err := buildKeyPair(alg, secret)
	if err != nil {
		return nil, err
	}

	km := &KeyManager{alg: alg}
	km.pair.Store(pair)
	return km, nil
}

// NewRandomKeyManager builds a KeyManager with a freshly drawn HMAC
// secret of the minimum safe length. Asymmetric key generation is a
// deferred capability and fails with ErrUnsupportedAlgorithm; generate
// PEM material externally (see cryptox) and use NewKeyManager.
func NewRandomKeyManager(alg Algorithm) (*KeyManager, error) {
	if !alg.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if alg.Family() != FamilyHMAC {
		return nil, fmt.Errorf("%w: %s key generation not implemented", ErrUnsupportedAlgorithm, alg)
	}

	secret, err := cryptox.GenerateToken(alg.MinSecretLen())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return NewKeyManager(alg, []byte(secret))
}

func buildKeyPair(alg Algorithm, secret []byte) (*keyPair, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrInvalidKey)
	}

	switch alg.Family() {
	case FamilyHMAC:
		if err := ValidateKeyCompatibility(alg, secret); err != nil {
			return nil, err
		}
		return &keyPair{encoding: secret, decoding: secret}, nil

	case FamilyRSA:
		key, err := jwt.ParseRSAPrivateKeyFromPEM(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: parse RSA PEM: %v", ErrInvalidKey, err)
		}
		return &keyPair{encoding: key, decoding: &key.PublicKey}, nil

	case FamilyECDSA:
		key, err := jwt.ParseECPrivateKeyFromPEM(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: parse EC PEM: %v", ErrInvalidKey, err)
		}
		return &keyPair{encoding: key, decoding: &key.PublicKey}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

// ValidateKeyCompatibility enforces the minimum HMAC secret length for
// the algorithm (32/48/64 bytes for HS256/384/512). Asymmetric material
// is validated by the PEM parse instead.
func ValidateKeyCompatibility(alg Algorithm, secret []byte) error {
	if alg.Family() != FamilyHMAC {
		return nil
	}
	if min := alg.MinSecretLen(); len(secret) < min {
		return fmt.Errorf("%w: %s secret must be at least %d bytes, got %d",
			ErrInvalidKey, alg, min, len(secret))
	}
	return nil
}

// Algorithm returns the algorithm this manager signs and verifies with.
func (km *KeyManager) Algorithm() Algorithm { return km.alg }

// EncodingKey returns the signing key material. Fails with
// ErrServiceUnavailable if no key is loaded.
func (km *KeyManager) EncodingKey() (any, error) {
	p := km.pair.Load()
	if p == nil || p.encoding == nil {
		return nil, fmt.Errorf("%w: no encoding key", ErrServiceUnavailable)
	}
	return p.encoding, nil
}

// DecodingKey returns the verification key material. Fails with
// ErrServiceUnavailable if no key is loaded.
func (km *KeyManager) DecodingKey() (any, error) {
	p := km.pair.Load()
	if p == nil || p.decoding == nil {
		return nil, fmt.Errorf("%w: no decoding key", ErrServiceUnavailable)
	}
	return p.decoding, nil
}

// Rotate atomically replaces the encoding+decoding pair with one built
// from the new secret. The old pair is discarded from this manager;
// keep it in a KeyRing if pre-rotation tokens must remain verifiable.
func (km *KeyManager) Rotate(newSecret []byte) error {
	pair, err := buildKeyPair(km.alg, newSecret)
	if err != nil {
		return err
	}
	km.pair.Store(pair)
	return nil
}

// KeyRing holds the current KeyManager plus a bounded history of
// predecessors, newest first. Signing always uses the current manager;
// verification tries the ring newest-first so tokens signed before a
// rotation stay valid until they expire or fall off the ring.
type KeyRing struct {
	mu       sync.RWMutex
	managers []*KeyManager
	limit    int
}

// DefaultKeyHistory is how many retired managers a ring retains.
const DefaultKeyHistory = 3

// NewKeyRing wraps an initial manager. limit bounds the retained
// history (current + limit predecessors); non-positive means
// DefaultKeyHistory.
func NewKeyRing(current *KeyManager, limit int) *KeyRing {
	if limit <= 0 {
		limit = DefaultKeyHistory
	}
	return &KeyRing{managers: []*KeyManager{current}, limit: limit}
}

// Current returns the manager used for signing.
func (r *KeyRing) Current() *KeyManager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.managers[0]
}

// Rotate installs a new manager built from newSecret as the signing key
// and retires the previous one into the verification history.
func (r *KeyRing) Rotate(newSecret []byte) error {
	r.mu.RLock()
	alg := r.managers[0].alg
	r.mu.RUnlock()

	km, err := NewKeyManager(alg, newSecret)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.managers = append([]*KeyManager{km}, r.managers...)
	if len(r.managers) > r.limit+1 {
		r.managers = r.managers[:r.limit+1]
	}
	return nil
}

// Managers returns a snapshot of the ring, newest first.
func (r *KeyRing) Managers() []*KeyManager {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*KeyManager, len(r.managers))
	copy(out, r.managers)
	return out
}
