package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusActive  SessionStatus = "active"
	SessionStatusExpired SessionStatus = "expired"
	// SessionStatusRevoked is terminal: logout and forced revocation set it,
	// and the session's refresh token can no longer be exchanged.
	SessionStatusRevoked SessionStatus = "revoked"
)

// Session binds one access token and one refresh token (by jti) to a
// user. Rows are never deleted; they move to expired or revoked.
type Session struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	UserID         uuid.UUID     `json:"user_id" db:"user_id"`
	TokenID        string        `json:"-" db:"token_id"`
	RefreshTokenID string        `json:"-" db:"refresh_token_id"`
	Status         SessionStatus `json:"status" db:"status"`
	UserAgent      string        `json:"user_agent,omitempty" db:"user_agent"`
	IPAddress      string        `json:"ip_address,omitempty" db:"ip_address"`
	ExpiresAt      time.Time     `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time     `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// ExpiredAt reports whether the session is past its deadline at now.
// The deadline itself counts as expired.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Refreshable reports whether the session's refresh token may still be
// exchanged for a new pair.
func (s *Session) Refreshable() bool {
	return s.Status != SessionStatusRevoked
}

// RevokedToken is a blacklist entry keyed by the SHA-256 of the raw token.
type RevokedToken struct {
	TokenHash string    `db:"token_hash"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}
