package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
)

const sessionColumns = `id, user_id, token_id, refresh_token_id, status, user_agent, ip_address,
		   expires_at, last_activity_at, created_at`

type sessionRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB, queryTimeout time.Duration) repository.SessionRepository {
	return &sessionRepository{db: db, timeout: queryTimeout}
}

// Create inserts a new session into the database
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO sessions (
			id, user_id, token_id, refresh_token_id, status, user_agent, ip_address,
			expires_at, last_activity_at, created_at
		) VALUES (
			:id, :user_id, :token_id, :refresh_token_id, :status, :user_agent, :ip_address,
			:expires_at, :last_activity_at, :created_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its ID regardless of status
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session by id: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) FindActive(ctx context.Context, userID uuid.UUID, tokenID string) (*domain.Session, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND token_id = $2 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, userID, tokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("active session: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return &session, nil
}

func (r *sessionRepository) FindByRefreshToken(ctx context.Context, userID uuid.UUID, refreshTokenID string) (*domain.Session, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND refresh_token_id = $2
		ORDER BY created_at DESC
		LIMIT 1`

	var session domain.Session
	if err := r.db.GetContext(ctx, &session, query, userID, refreshTokenID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh session: %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find session by refresh token: %w", err)
	}
	return &session, nil
}

// ListActiveByUser returns unexpired active sessions, newest first
func (r *sessionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*domain.Session, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND status = 'active' AND expires_at > $2
		ORDER BY created_at DESC`

	var sessions []*domain.Session
	if err := r.db.SelectContext(ctx, &sessions, query, userID, now); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Touch slides the expiry of an active session
func (r *sessionRepository) Touch(ctx context.Context, id uuid.UUID, expiresAt, lastActivityAt time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		UPDATE sessions
		SET expires_at = $2, last_activity_at = $3
		WHERE id = $1 AND status = 'active'`

	if _, err := r.db.ExecContext(ctx, query, id, expiresAt, lastActivityAt); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Expire(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE sessions SET status = 'expired' WHERE id = $1 AND status = 'active'`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	return nil
}

func (r *sessionRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := `UPDATE sessions SET status = 'revoked' WHERE id = $1 AND status <> 'revoked'`

	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every session of the user except keep. Timed
// out sessions are included since their refresh tokens are still live.
func (r *sessionRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID, keep *uuid.UUID) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var (
		result sql.Result
		err    error
	)
	if keep != nil {
		result, err = r.db.ExecContext(ctx,
			`UPDATE sessions SET status = 'revoked' WHERE user_id = $1 AND status <> 'revoked' AND id <> $2`,
			userID, *keep)
	} else {
		result, err = r.db.ExecContext(ctx,
			`UPDATE sessions SET status = 'revoked' WHERE user_id = $1 AND status <> 'revoked'`,
			userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}
