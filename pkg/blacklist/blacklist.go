package blacklist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andressep95/crm-auth/internal/domain"
)

const keyPrefix = "blacklist:token:"

// TokenBlacklist keeps revoked token hashes in Redis. Entries carry a TTL
// equal to the token's remaining lifetime, so Redis expires them itself.
type TokenBlacklist struct {
	redis redis.UniversalClient
	now   func() time.Time
}

// NewTokenBlacklist creates a new token blacklist service
func NewTokenBlacklist(redisClient redis.UniversalClient) *TokenBlacklist {
	return &TokenBlacklist{
		redis: redisClient,
		now:   time.Now,
	}
}

// Add stores the hash until entry.ExpiresAt with SETNX, so only the first
// caller for a given token sees true. Existing entries keep their TTL.
func (b *TokenBlacklist) Add(ctx context.Context, entry *domain.RevokedToken) (bool, error) {
	ttl := entry.ExpiresAt.Sub(b.now())
	if ttl <= 0 {
		return false, nil
	}

	added, err := b.redis.SetNX(ctx, keyPrefix+entry.TokenHash, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to add token to blacklist: %w", err)
	}
	return added, nil
}

// Exists relies on Redis expiry; now is accepted for interface parity.
func (b *TokenBlacklist) Exists(ctx context.Context, tokenHash string, _ time.Time) (bool, error) {
	n, err := b.redis.Exists(ctx, keyPrefix+tokenHash).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired is a no-op: Redis drops expired keys on its own.
func (b *TokenBlacklist) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
