package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/metrics"
	"github.com/andressep95/crm-auth/internal/repository"
	logctx "github.com/andressep95/crm-auth/pkg/log"
)

// RevocationService manages the token blacklist. Only SHA-256 digests of
// raw tokens ever reach the store.
type RevocationService struct {
	store    repository.BlacklistRepository
	failOpen bool
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRevocationService(store repository.BlacklistRepository, failOpen bool, m *metrics.Metrics, now func() time.Time) *RevocationService {
	if now == nil {
		now = time.Now
	}
	return &RevocationService{
		store:    store,
		failOpen: failOpen,
		metrics:  m,
		now:      now,
	}
}

// HashToken returns the hex SHA-256 digest stored for a raw token.
func HashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// IsRevoked reports whether rawToken has an unexpired blacklist entry.
// When the store fails and the service fails open, the check passes with
// a warning.
func (s *RevocationService) IsRevoked(ctx context.Context, rawToken string) (bool, error) {
	revoked, err := s.store.Exists(ctx, HashToken(rawToken), s.now())
	if err == nil {
		return revoked, nil
	}
	if s.failOpen {
		logctx.From(ctx).Warn("blacklist_check_failed_open", "error", err)
		s.metrics.RevocationFailedOpen()
		return false, nil
	}
	return false, fmt.Errorf("failed to check token blacklist: %w", err)
}

// Revoke blacklists rawToken until expiresAt. Tokens already past their
// expiry are skipped since verification rejects them anyway.
func (s *RevocationService) Revoke(ctx context.Context, rawToken string, expiresAt time.Time) error {
	_, err := s.add(ctx, rawToken, expiresAt)
	return err
}

// Claim revokes rawToken and reports whether this call was the one that
// revoked it. Single-use tokens are redeemed only when Claim returns true.
func (s *RevocationService) Claim(ctx context.Context, rawToken string, expiresAt time.Time) (bool, error) {
	return s.add(ctx, rawToken, expiresAt)
}

func (s *RevocationService) add(ctx context.Context, rawToken string, expiresAt time.Time) (bool, error) {
	now := s.now()
	if !expiresAt.After(now) {
		return false, nil
	}
	entry := &domain.RevokedToken{
		TokenHash: HashToken(rawToken),
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now.UTC(),
	}
	added, err := s.store.Add(ctx, entry)
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return added, nil
}

// Purge removes entries whose tokens have expired on their own.
func (s *RevocationService) Purge(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge token blacklist: %w", err)
	}
	s.metrics.BlacklistPurged(n)
	return n, nil
}
