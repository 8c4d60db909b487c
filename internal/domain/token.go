package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`

	// RefreshTokenID is the refresh token's jti, stored on the session.
	RefreshTokenID string `json:"-"`
}

// Claims carries only the registered claims plus the token type; user
// data is always loaded from storage.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"type"`
}

func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
