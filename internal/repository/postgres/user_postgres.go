package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
)

const userWithCompanyQuery = `
		SELECT u.id, u.company_id, u.name, u.email, u.password_hash, u.role,
			   COALESCE(u.permissions, '[]'::jsonb) AS permissions,
			   u.status, u.last_login_at,
			   c.name AS company_name,
			   COALESCE(c.domain, '') AS company_domain,
			   COALESCE(c.plan, '') AS company_plan,
			   COALESCE(c.modules, '[]'::jsonb) AS company_modules,
			   c.status AS company_status
		FROM users u
		JOIN companies c ON c.id = u.company_id`

// userRow mirrors the joined row; role and JSON columns are validated in
// toDomain before anything else sees them.
type userRow struct {
	ID             uuid.UUID      `db:"id"`
	CompanyID      uuid.UUID      `db:"company_id"`
	Name           string         `db:"name"`
	Email          string         `db:"email"`
	PasswordHash   string         `db:"password_hash"`
	Role           string         `db:"role"`
	Permissions    types.JSONText `db:"permissions"`
	Status         string         `db:"status"`
	LastLoginAt    *time.Time     `db:"last_login_at"`
	CompanyName    string         `db:"company_name"`
	CompanyDomain  string         `db:"company_domain"`
	CompanyPlan    string         `db:"company_plan"`
	CompanyModules types.JSONText `db:"company_modules"`
	CompanyStatus  string         `db:"company_status"`
}

func (r *userRow) toDomain() (*domain.User, *domain.Company, error) {
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("user %s: %w", r.ID, err)
	}
	perms, err := domain.ParsePermissions(r.Permissions)
	if err != nil {
		return nil, nil, fmt.Errorf("user %s: %w", r.ID, err)
	}
	var modules []string
	if err := r.CompanyModules.Unmarshal(&modules); err != nil {
		return nil, nil, fmt.Errorf("company %s: invalid modules: %w", r.CompanyID, err)
	}
	if modules == nil {
		modules = []string{}
	}

	user := &domain.User{
		ID:           r.ID,
		CompanyID:    r.CompanyID,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         role,
		Permissions:  perms,
		Status:       domain.UserStatus(r.Status),
		LastLoginAt:  r.LastLoginAt,
	}
	company := &domain.Company{
		ID:      r.CompanyID,
		Name:    r.CompanyName,
		Domain:  r.CompanyDomain,
		Plan:    r.CompanyPlan,
		Modules: modules,
		Status:  domain.CompanyStatus(r.CompanyStatus),
	}
	return user, company, nil
}

type userRepository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserRepository creates a read-mostly repository over users and companies
func NewUserRepository(db *sqlx.DB, queryTimeout time.Duration) repository.UserRepository {
	return &userRepository{db: db, timeout: queryTimeout}
}

func (r *userRepository) GetWithCompany(ctx context.Context, id uuid.UUID) (*domain.User, *domain.Company, error) {
	return r.getOne(ctx, userWithCompanyQuery+` WHERE u.id = $1`, id)
}

func (r *userRepository) GetByEmailWithCompany(ctx context.Context, email string) (*domain.User, *domain.Company, error) {
	return r.getOne(ctx, userWithCompanyQuery+` WHERE LOWER(u.email) = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *userRepository) getOne(ctx context.Context, query string, arg interface{}) (*domain.User, *domain.Company, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("user: %w", repository.ErrNotFound)
		}
		return nil, nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toDomain()
}

// UpdateLastLogin is the only write the auth core makes to users
func (r *userRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}
