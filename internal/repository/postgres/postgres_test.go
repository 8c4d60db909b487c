package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return sqlx.NewDb(db, "postgres"), mock
}

var sessionCols = []string{"id", "user_id", "token_id", "refresh_token_id", "status", "user_agent", "ip_address", "expires_at", "last_activity_at", "created_at"}

func TestSessionRepository_CreateAndFindActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, time.Second)
	ctx := context.Background()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	s := &domain.Session{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		TokenID:        "jti-1",
		RefreshTokenID: "rjti-1",
		Status:         domain.SessionStatusActive,
		ExpiresAt:      now.Add(time.Hour),
		LastActivityAt: now,
		CreatedAt:      now,
	}

	mock.ExpectExec(`INSERT INTO sessions`).
		WithArgs(s.ID, s.UserID, s.TokenID, s.RefreshTokenID, s.Status, s.UserAgent, s.IPAddress, s.ExpiresAt, s.LastActivityAt, s.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(ctx, s))

	mock.ExpectQuery(`FROM sessions\s+WHERE user_id = \$1 AND token_id = \$2 AND status = 'active'`).
		WithArgs(s.UserID, "jti-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(s.ID.String(), s.UserID.String(), s.TokenID, s.RefreshTokenID, "active", "", "", s.ExpiresAt, s.LastActivityAt, s.CreatedAt))
	got, err := repo.FindActive(ctx, s.UserID, "jti-1")
	require.NoError(t, err)
	require.Equal(t, s.ID, got.ID)
	require.Equal(t, domain.SessionStatusActive, got.Status)

	mock.ExpectQuery(`FROM sessions`).
		WithArgs(s.UserID, "unknown").
		WillReturnRows(sqlmock.NewRows(sessionCols))
	_, err = repo.FindActive(ctx, s.UserID, "unknown")
	require.ErrorIs(t, err, repository.ErrNotFound)

	mock.ExpectQuery(`FROM sessions\s+WHERE user_id = \$1 AND refresh_token_id = \$2\s+ORDER BY`).
		WithArgs(s.UserID, "rjti-1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(s.ID.String(), s.UserID.String(), s.TokenID, s.RefreshTokenID, "expired", "", "", s.ExpiresAt, s.LastActivityAt, s.CreatedAt))
	got, err = repo.FindByRefreshToken(ctx, s.UserID, "rjti-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionStatusExpired, got.Status)
	require.True(t, got.Refreshable())

	mock.ExpectQuery(`refresh_token_id = \$2`).
		WithArgs(s.UserID, "unknown").
		WillReturnRows(sqlmock.NewRows(sessionCols))
	_, err = repo.FindByRefreshToken(ctx, s.UserID, "unknown")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSessionRepository_TouchExpire(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, time.Second)
	ctx := context.Background()
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE sessions\s+SET expires_at = \$2, last_activity_at = \$3`).
		WithArgs(id, now.Add(time.Hour), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Touch(ctx, id, now.Add(time.Hour), now))

	// expiring twice is not an error even when nothing changes
	mock.ExpectExec(`UPDATE sessions SET status = 'expired' WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sessions SET status = 'expired' WHERE id = \$1`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, repo.Expire(ctx, id))
	require.NoError(t, repo.Expire(ctx, id))

	mock.ExpectExec(`UPDATE sessions SET status = 'expired' WHERE id = \$1`).
		WithArgs(id).
		WillReturnError(errors.New("connection reset"))
	require.Error(t, repo.Expire(ctx, id))

	mock.ExpectExec(`UPDATE sessions SET status = 'revoked' WHERE id = \$1 AND status <> 'revoked'`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Revoke(ctx, id))
}

func TestSessionRepository_RevokeAllForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db, time.Second)
	userID, keep := uuid.New(), uuid.New()

	mock.ExpectExec(`SET status = 'revoked' WHERE user_id = \$1 AND status <> 'revoked' AND id <> \$2`).
		WithArgs(userID, keep).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := repo.RevokeAllForUser(context.Background(), userID, &keep)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	mock.ExpectExec(`WHERE user_id = \$1 AND status <> 'revoked'`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err = repo.RevokeAllForUser(context.Background(), userID, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestBlacklistRepository(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlacklistRepository(db, time.Second)
	ctx := context.Background()
	now := time.Now().UTC()
	entry := &domain.RevokedToken{TokenHash: "abc", ExpiresAt: now.Add(time.Hour), CreatedAt: now}

	mock.ExpectExec(`(?s)INSERT INTO token_blacklist.*ON CONFLICT \(token_hash\) DO NOTHING`).
		WithArgs("abc", entry.ExpiresAt, entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO token_blacklist.*ON CONFLICT \(token_hash\) DO NOTHING`).
		WithArgs("abc", entry.ExpiresAt, entry.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))
	added, err := repo.Add(ctx, entry)
	require.NoError(t, err)
	require.True(t, added)
	added, err = repo.Add(ctx, entry)
	require.NoError(t, err)
	require.False(t, added)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc", now).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.Exists(ctx, "abc", now)
	require.NoError(t, err)
	require.True(t, ok)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("abc", now).
		WillReturnError(errors.New("timeout"))
	_, err = repo.Exists(ctx, "abc", now)
	require.Error(t, err)

	mock.ExpectExec(`DELETE FROM token_blacklist WHERE expires_at <= \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))
	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
}

var userCols = []string{
	"id", "company_id", "name", "email", "password_hash", "role", "permissions", "status", "last_login_at",
	"company_name", "company_domain", "company_plan", "company_modules", "company_status",
}

func TestUserRepository_GetWithCompany(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, time.Second)
	userID, companyID := uuid.New(), uuid.New()

	mock.ExpectQuery(`JOIN companies c ON c.id = u.company_id WHERE u.id = \$1`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			userID.String(), companyID.String(), "Ana", "ana@acme.io", "hash", "company_admin",
			[]byte(`["deals:write","contacts:read"]`), "active", nil,
			"Acme", "acme.io", "pro", []byte(`["crm","finance"]`), "active",
		))

	user, company, err := repo.GetWithCompany(context.Background(), userID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleCompanyAdmin, user.Role)
	require.True(t, user.Permissions.Has("deals:write"))
	require.Equal(t, []string{"crm", "finance"}, company.Modules)
	require.Equal(t, domain.CompanyStatusActive, company.Status)
}

func TestUserRepository_RejectsUnknownRole(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, time.Second)
	userID := uuid.New()

	mock.ExpectQuery(`FROM users u`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			userID.String(), uuid.NewString(), "Ana", "ana@acme.io", "hash", "root",
			[]byte(`[]`), "active", nil, "Acme", "", "", []byte(`[]`), "active",
		))

	_, _, err := repo.GetWithCompany(context.Background(), userID)
	require.ErrorContains(t, err, "unknown role")
}

func TestUserRepository_NotFoundAndEmailLookup(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db, time.Second)

	mock.ExpectQuery(`WHERE LOWER\(u.email\) = \$1`).
		WithArgs("ana@acme.io").
		WillReturnRows(sqlmock.NewRows(userCols))
	_, _, err := repo.GetByEmailWithCompany(context.Background(), "  Ana@Acme.io ")
	require.ErrorIs(t, err, repository.ErrNotFound)

	id := uuid.New()
	at := time.Now().UTC()
	mock.ExpectExec(`UPDATE users SET last_login_at`).
		WithArgs(id, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateLastLogin(context.Background(), id, at))
}
