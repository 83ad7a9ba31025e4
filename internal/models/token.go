package models

import "time"

// TokenTypeBearer is the scheme clients must use when presenting access tokens.
const TokenTypeBearer = "Bearer"

// TokenPair is the credential bundle returned by login, register and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresIn int64     `json:"refresh_expires_in"`
	IssuedAt         time.Time `json:"issued_at"`
}

// Principal is the authenticated identity attached to a request by the gate.
type Principal struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Role      UserRole  `json:"role"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionSummary reports the live refresh tokens of a user.
type SessionSummary struct {
	UserID         string `json:"user_id"`
	ActiveSessions int    `json:"active_sessions"`
}

// RevokeAllResult reports how many refresh tokens a log-out-everywhere removed.
type RevokeAllResult struct {
	Revoked int `json:"revoked"`
}
