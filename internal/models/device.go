package models

import "time"

// DeviceLogin records that a device completed a fully verified login for a
// user. Presence of a row makes the (user, device) pair trusted; the row is
// upserted with fresh metadata on every successful login.
type DeviceLogin struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	LoggedInAt time.Time `db:"logged_in_at" json:"logged_in_at"`
	IP         string    `db:"ip" json:"ip"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	DeviceType *string   `db:"device_type" json:"device_type,omitempty"`
	Platform   *string   `db:"platform" json:"platform,omitempty"`
	Browser    *string   `db:"browser" json:"browser,omitempty"`
	Country    *string   `db:"country" json:"country,omitempty"`
	City       *string   `db:"city" json:"city,omitempty"`
	Latitude   *string   `db:"latitude" json:"latitude,omitempty"`
	Longitude  *string   `db:"longitude" json:"longitude,omitempty"`
}

// DeviceContext is the client-supplied connection metadata for the current
// request. The device identifier is spoofable; it gates the one-time-code
// challenge, not authentication itself.
type DeviceContext struct {
	DeviceID   string
	IP         string
	UserAgent  string
	DeviceType *string
	Platform   *string
	Browser    *string
	Country    *string
	City       *string
	Latitude   *string
	Longitude  *string
}
