package models

import "time"

// LoginAttempt accumulates credential-check outcomes per identity. Failed
// rows within the lockout window feed the guard; a correct credential check
// clears them.
type LoginAttempt struct {
	ID          string    `db:"id" json:"id"`
	UserID      *string   `db:"user_id" json:"user_id,omitempty"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	IP          string    `db:"ip" json:"ip"`
	UserAgent   string    `db:"user_agent" json:"user_agent"`
	DeviceType  *string   `db:"device_type" json:"device_type,omitempty"`
	Platform    *string   `db:"platform" json:"platform,omitempty"`
	Browser     *string   `db:"browser" json:"browser,omitempty"`
	Success     bool      `db:"success" json:"success"`
	AttemptedAt time.Time `db:"attempted_at" json:"attempted_at"`
}
