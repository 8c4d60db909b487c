package domain

import (
	"github.com/google/uuid"
)

// CompanyStatus represents the status of a tenant
type CompanyStatus string

const (
	CompanyStatusActive    CompanyStatus = "active"
	CompanyStatusSuspended CompanyStatus = "suspended"
	CompanyStatusInactive  CompanyStatus = "inactive"
)

// Company is the tenant boundary every user belongs to.
type Company struct {
	ID      uuid.UUID     `json:"id"`
	Name    string        `json:"name"`
	Domain  string        `json:"domain"`
	Plan    string        `json:"plan"`
	Modules []string      `json:"modules"`
	Status  CompanyStatus `json:"status"`
}

func (c *Company) IsActive() bool {
	return c != nil && c.Status == CompanyStatusActive
}
