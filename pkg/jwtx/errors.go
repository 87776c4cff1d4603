package jwtx

import "errors"

// Sentinel errors for the token lifecycle. ErrTokenValidation is the
// single bucket for signature, format, and claim failures so callers
// cannot distinguish why a token was rejected; only expiry is surfaced
// separately because refresh flows need to tell "expired" from
// "forged".
var (
	ErrTokenCreation           = errors.New("jwtx: token creation failed")
	ErrTokenValidation         = errors.New("jwtx: invalid token")
	ErrTokenExpired            = errors.New("jwtx: token expired")
	ErrInvalidTokenType        = errors.New("jwtx: invalid token type")
	ErrInvalidKey              = errors.New("jwtx: invalid key material")
	ErrUnsupportedAlgorithm    = errors.New("jwtx: unsupported algorithm")
	ErrServiceUnavailable      = errors.New("jwtx: key material unavailable")
	ErrInsufficientPermissions = errors.New("jwtx: insufficient permissions")
)
