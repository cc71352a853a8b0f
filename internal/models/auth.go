package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	PhoneNumber string `json:"phone" validate:"required"`
	PIN         string `json:"pin" validate:"required"`
}

// TokenBundle returns both tokens with their expiries so clients do not
// need to decode them.
type TokenBundle struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	Token *TokenBundle `json:"token"`
	User  UserInfo     `json:"user"`
}

// ChallengeResponse is returned instead of tokens when an unrecognized
// device must pass a one-time-code challenge first.
type ChallengeResponse struct {
	RequiresOTP bool    `json:"requires_otp"`
	Message     string  `json:"message"`
	SendTo      *string `json:"send_to"`
}

// VerifyOTPRequest finalizes a pending login from an untrusted device.
// Identity is an email address or phone number.
type VerifyOTPRequest struct {
	Identity string `json:"identity" validate:"required"`
	OTP      string `json:"otp" validate:"required,len=6,numeric"`
}

// ResendOTPRequest re-issues a code for the given purpose.
type ResendOTPRequest struct {
	Identity string `json:"identity" validate:"required,max=100"`
	Purpose  string `json:"purpose" validate:"required"`
}

// ResendOTPResponse reports delivery without confirming account existence.
type ResendOTPResponse struct {
	Purpose string  `json:"purpose"`
	SendTo  *string `json:"send_to"`
	TTLMins int     `json:"ttl_mins"`
}

// RefreshRequest exchanges a refresh token for a new pair. The token may
// also arrive as a bearer header; the handler resolves precedence.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest revokes the presented refresh token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RevokeSessionsRequest targets sessions by id or device. Exactly one of
// RefreshTokenID / DeviceID must be supplied.
type RevokeSessionsRequest struct {
	RefreshTokenID string `json:"refresh_token_id"`
	DeviceID       string `json:"device_id"`
	RevokeCurrent  bool   `json:"revoke_current"`
}

// RevokeSessionsResponse reports how many sessions were revoked.
type RevokeSessionsResponse struct {
	Revoked int `json:"revoked"`
}

// LoginOutcome is either issued tokens (trusted device) or an OTP
// challenge (unrecognized device). Exactly one field is set.
type LoginOutcome struct {
	Challenge *ChallengeResponse
	Response  *LoginResponse
}

// JWTClaims is the fixed, typed shape of both access and refresh token
// payloads. Tokens missing required claims are rejected rather than
// duck-typed; caller-supplied extras ride in the explicit Extra member.
type JWTClaims struct {
	Name           string            `json:"name"`
	Phone          string            `json:"phone"`
	Role           string            `json:"role"`
	TokenVersion   int               `json:"token_version"`
	MemberTierCode *string           `json:"member_tier_code,omitempty"`
	Extra          map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}
