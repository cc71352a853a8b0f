package models

import "time"

// RefreshSession is a persisted per-device refresh token session keyed by
// the refresh token's jti. It transitions once to revoked and is never
// revived or reused; past expires_at it is treated as expired.
type RefreshSession struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	JTI       string     `db:"jti" json:"jti"`
	DeviceID  string     `db:"device_id" json:"device_id"`
	IP        string     `db:"ip" json:"ip"`
	UserAgent string     `db:"user_agent" json:"user_agent"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Session lifecycle statuses derived from (revoked_at, expires_at) vs now.
const (
	SessionStatusActive  = "active"
	SessionStatusExpired = "expired"
	SessionStatusRevoked = "revoked"
)

// Status derives the lifecycle state at the given instant.
func (s *RefreshSession) Status(now time.Time) string {
	if s.RevokedAt != nil {
		return SessionStatusRevoked
	}
	if now.After(s.ExpiresAt) {
		return SessionStatusExpired
	}
	return SessionStatusActive
}

// SessionRow joins a refresh session with the device's last login timestamp.
type SessionRow struct {
	RefreshSession
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// SessionInfo is the listing representation of a session.
type SessionInfo struct {
	ID              string     `json:"id"`
	DeviceID        string     `json:"device_id"`
	IP              string     `json:"ip"`
	UserAgent       string     `json:"user_agent"`
	CreatedAt       time.Time  `json:"created_at"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	Status          string     `json:"status"`
	IsCurrentDevice bool       `json:"is_current_device"`
}
