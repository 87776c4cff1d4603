// Package refresh manages the stateful side of refresh tokens:
// persisted records, rotation-on-use, per-user quotas, and family
// revocation for stolen-lineage incident response.
package refresh

import "time"

// Revocation reasons written to records. The rotation reason is load
// bearing: tests and operators distinguish rotated tokens from
// security revocations by it.
const (
	ReasonRotated       = "Rotated"
	ReasonQuotaExceeded = "Quota exceeded"
	ReasonUserRequested = "Revoked by user"
	ReasonFamilyRevoked = "Family revoked"
	ReasonSecurityEvent = "Security event"
)

// Record is the persisted state of one refresh token. The JWT the
// client holds references it by TokenID; the record is authoritative
// for expiry and revocation.
type Record struct {
	TokenID  string
	UserID   string
	TenantID string

	// FamilyID links successive rotations of one logical session so a
	// single compromise can invalidate the whole chain.
	FamilyID string

	CreatedAt time.Time
	ExpiresAt time.Time

	// Client metadata captured at issuance.
	DeviceID  string
	IPAddress string
	UserAgent string

	// Revoked is terminal; a record never flips back.
	Revoked          bool
	RevocationReason string
}

// Active reports whether the record can still redeem: not revoked and
// not past its expiry.
func (r Record) Active(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}
