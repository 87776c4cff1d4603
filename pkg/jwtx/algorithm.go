package jwtx

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm identifies a supported JWT signing algorithm.
type Algorithm string

const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
)

// KeyFamily groups algorithms by the kind of key material they need.
type KeyFamily int

const (
	FamilyHMAC KeyFamily = iota
	FamilyRSA
	FamilyECDSA
)

type algorithmInfo struct {
	method jwt.SigningMethod
	family KeyFamily

	// minSecretLen is the minimum HMAC secret length in bytes. Matching
	// the hash output size guards against weak-key misconfiguration.
	// Zero for asymmetric algorithms.
	minSecretLen int
}

// algorithms is the single mapping table from Algorithm to its
// underlying primitives. Everything else derives from this.
var algorithms = map[Algorithm]algorithmInfo{
	HS256: {method: jwt.SigningMethodHS256, family: FamilyHMAC, minSecretLen: 32},
	HS384: {method: jwt.SigningMethodHS384, family: FamilyHMAC, minSecretLen: 48},
	HS512: {method: jwt.SigningMethodHS512, family: FamilyHMAC, minSecretLen: 64},
	RS256: {method: jwt.SigningMethodRS256, family: FamilyRSA},
	RS384: {method: jwt.SigningMethodRS384, family: FamilyRSA},
	RS512: {method: jwt.SigningMethodRS512, family: FamilyRSA},
	ES256: {method: jwt.SigningMethodES256, family: FamilyECDSA},
	ES384: {method: jwt.SigningMethodES384, family: FamilyECDSA},
}

// ParseAlgorithm validates a configuration string against the supported
// algorithm set.
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(s)
	if _, ok := algorithms[alg]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, s)
	}
	return alg, nil
}

// SigningMethod returns the golang-jwt signing method for the algorithm.
func (a Algorithm) SigningMethod() jwt.SigningMethod {
	return algorithms[a].method
}

// Family returns the key family the algorithm belongs to.
func (a Algorithm) Family() KeyFamily {
	return algorithms[a].family
}

// MinSecretLen returns the minimum HMAC secret length in bytes, or zero
// for asymmetric algorithms.
func (a Algorithm) MinSecretLen() int {
	return algorithms[a].minSecretLen
}

// Valid reports whether the algorithm is one we support.
func (a Algorithm) Valid() bool {
	_, ok := algorithms[a]
	return ok
}

func (a Algorithm) String() string { return string(a) }
