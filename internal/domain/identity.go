package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity is what downstream handlers see after authentication.
type Identity struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   uuid.UUID       `json:"companyId"`
	Name        string          `json:"name"`
	Email       string          `json:"email"`
	Role        Role            `json:"role"`
	Permissions Permissions     `json:"permissions"`
	Status      UserStatus      `json:"status"`
	Company     Company         `json:"company"`
	Session     SessionIdentity `json:"session"`
}

type SessionIdentity struct {
	ID           uuid.UUID `json:"id"`
	TokenID      string    `json:"tokenId"`
	LastActivity time.Time `json:"lastActivity"`
}

// NewIdentity assembles the request identity from the loaded rows.
func NewIdentity(user *User, company *Company, session *Session) *Identity {
	perms := user.Permissions
	if perms == nil {
		perms = Permissions{}
	}
	return &Identity{
		ID:          user.ID,
		CompanyID:   user.CompanyID,
		Name:        user.Name,
		Email:       user.Email,
		Role:        user.Role,
		Permissions: perms,
		Status:      user.Status,
		Company:     *company,
		Session: SessionIdentity{
			ID:           session.ID,
			TokenID:      session.TokenID,
			LastActivity: session.LastActivityAt,
		},
	}
}

func (i *Identity) HasRole(roles ...Role) bool {
	if i == nil {
		return false
	}
	for _, r := range roles {
		if i.Role == r {
			return true
		}
	}
	return false
}
