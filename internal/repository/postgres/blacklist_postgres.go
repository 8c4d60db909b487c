package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
)

type blacklistRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewBlacklistRepository creates the token_blacklist store
func NewBlacklistRepository(db *sqlx.DB, queryTimeout time.Duration) repository.BlacklistRepository {
	return &blacklistRepository{db: db, timeout: queryTimeout}
}

// Add inserts the entry unless the hash is already present. A token's
// expiry never changes, so an existing row is left as is.
func (r *blacklistRepository) Add(ctx context.Context, entry *domain.RevokedToken) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO token_blacklist (token_hash, expires_at, created_at)
		VALUES (:token_hash, :expires_at, :created_at)
		ON CONFLICT (token_hash) DO NOTHING`

	result, err := r.db.NamedExecContext(ctx, query, entry)
	if err != nil {
		return false, fmt.Errorf("failed to blacklist token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *blacklistRepository) Exists(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT EXISTS (
		SELECT 1 FROM token_blacklist WHERE token_hash = $1 AND expires_at > $2
	)`

	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, tokenHash, now); err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists, nil
}

// DeleteExpired garbage-collects entries that no longer matter
func (r *blacklistRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.db.ExecContext(ctx, `DELETE FROM token_blacklist WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
