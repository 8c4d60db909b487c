package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	// FindActive returns the newest active session bound to tokenID. It
	// does not filter on expires_at; callers apply lazy expiry.
	FindActive(ctx context.Context, userID uuid.UUID, tokenID string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.Session, error)
	Touch(ctx context.Context, id uuid.UUID, expiresAt, lastActivityAt time.Time) error
	// FindByRefreshToken returns the session a refresh token was issued
	// with, in any status.
	FindByRefreshToken(ctx context.Context, userID uuid.UUID, refreshTokenID string) (*domain.Session, error)
	// Expire is idempotent and never downgrades a revoked session.
	Expire(ctx context.Context, id uuid.UUID) error
	// Revoke is idempotent.
	Revoke(ctx context.Context, id uuid.UUID) error
	// RevokeAllForUser revokes every session of the user not yet revoked,
	// except keep.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, keep *uuid.UUID) (int64, error)
}
