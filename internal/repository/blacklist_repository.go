package repository

import (
	"context"
	"time"

	"github.com/andressep95/crm-auth/internal/domain"
)

// BlacklistRepository stores hashes of revoked tokens.
type BlacklistRepository interface {
	// Add is idempotent. It reports whether this call created the entry,
	// which makes it usable as a single-use guard.
	Add(ctx context.Context, entry *domain.RevokedToken) (bool, error)
	Exists(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
