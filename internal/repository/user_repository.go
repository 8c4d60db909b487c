package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
)

// UserRepository is the read side of the CRM user/company tables.
type UserRepository interface {
	GetWithCompany(ctx context.Context, id uuid.UUID) (*domain.User, *domain.Company, error)
	GetByEmailWithCompany(ctx context.Context, email string) (*domain.User, *domain.Company, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
