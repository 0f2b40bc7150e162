package models

import "time"

// VerificationToken is a single-use, expiring secret keyed by an opaque identifier.
// Identifier is the primary key so at most one live token exists per identifier.
type VerificationToken struct {
	Identifier string    `gorm:"primaryKey;size:128" json:"identifier"`
	Token      string    `gorm:"not null;index" json:"-"`
	Expires    time.Time `gorm:"not null;index" json:"expires"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !t.Expires.After(now)
}
