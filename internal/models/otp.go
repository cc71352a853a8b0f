package models

import "time"

// One-time-code purposes. At most one active code exists per
// (user, purpose); issuing a new one invalidates prior active codes.
const (
	OTPPurposeLogin              = "login"
	OTPPurposeDeviceVerification = "device_verification"
	OTPPurposeResetPassword      = "reset_password"
	OTPPurposeResetPIN           = "reset_pin"
	OTPPurposeEmailVerification  = "email_verification"
)

// ValidOTPPurpose reports whether the purpose is one the core issues.
func ValidOTPPurpose(p string) bool {
	switch p {
	case OTPPurposeLogin, OTPPurposeDeviceVerification, OTPPurposeResetPassword,
		OTPPurposeResetPIN, OTPPurposeEmailVerification:
		return true
	}
	return false
}

// OneTimeCode is a short-lived 6-digit code bound to (user, purpose).
type OneTimeCode struct {
	ID            string     `db:"id" json:"id"`
	UserID        string     `db:"user_id" json:"user_id"`
	Purpose       string     `db:"purpose" json:"purpose"`
	Code          string     `db:"code" json:"-"`
	ExpiresAt     time.Time  `db:"expires_at" json:"expires_at"`
	AttemptCount  int        `db:"attempt_count" json:"attempt_count"`
	InvalidatedAt *time.Time `db:"invalidated_at" json:"invalidated_at,omitempty"`
	UsedAt        *time.Time `db:"used_at" json:"used_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}
