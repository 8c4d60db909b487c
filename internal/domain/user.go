package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBlocked  UserStatus = "blocked"
)

// User is owned by the CRM layer; the auth core only reads it and
// writes LastLoginAt.
type User struct {
	ID           uuid.UUID
	CompanyID    uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Permissions  Permissions
	Status       UserStatus
	LastLoginAt  *time.Time
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}
