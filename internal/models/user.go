package models

import "time"

// User is the principal this subsystem issues credentials for. The identity
// store owns the row; this core reads it and increments token_version.
type User struct {
	ID              string     `db:"id" json:"id"`
	FullName        string     `db:"full_name" json:"full_name"`
	Email           string     `db:"email" json:"email"`
	PhoneNumber     string     `db:"phone_number" json:"phone_number"`
	PinHash         string     `db:"pin_hash" json:"-"`
	Role            string     `db:"role" json:"role"`
	TokenVersion    int        `db:"token_version" json:"-"`
	MemberTierCode  *string    `db:"member_tier_code" json:"member_tier_code,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	BannedReason    *string    `db:"banned_reason" json:"-"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"-"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID             string  `json:"id"`
	FullName       string  `json:"full_name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	MemberTierCode *string `json:"member_tier_code,omitempty"`
}

// Info projects the response-safe subset of a user.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:             u.ID,
		FullName:       u.FullName,
		Email:          u.Email,
		PhoneNumber:    u.PhoneNumber,
		MemberTierCode: u.MemberTierCode,
	}
}
