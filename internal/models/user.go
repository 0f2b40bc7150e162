package models

import "time"

// User is the canonical identity produced by Google or phone sign-in.
// Email and PhoneNumberHash are nullable so the unique indexes tolerate
// users that only have one of them.
type User struct {
	BaseModel

	Name  string  `json:"name"`
	Email *string `gorm:"uniqueIndex" json:"email,omitempty"`
	Image string  `json:"image,omitempty"`

	EmailVerified *time.Time `json:"email_verified"`

	PhoneNumberHash  *string `gorm:"uniqueIndex" json:"-"`
	PhoneNumberLast4 string  `gorm:"size:4" json:"phone_number_last4,omitempty"`

	VerificationToken        *string    `gorm:"uniqueIndex" json:"-"`
	VerificationTokenExpires *time.Time `json:"-"`

	Accounts []Account `gorm:"foreignKey:UserID" json:"-"`
}

// IsEmailVerified reports whether the email verification workflow completed.
func (u *User) IsEmailVerified() bool {
	return u != nil && u.EmailVerified != nil
}

// EmailAddress returns the email or an empty string.
func (u *User) EmailAddress() string {
	if u == nil || u.Email == nil {
		return ""
	}
	return *u.Email
}

// HasPendingVerification reports whether an unexpired email verification token is outstanding.
func (u *User) HasPendingVerification(now time.Time) bool {
	if u == nil || u.VerificationToken == nil || u.VerificationTokenExpires == nil {
		return false
	}
	return u.VerificationTokenExpires.After(now)
}
