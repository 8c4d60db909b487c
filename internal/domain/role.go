package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is the closed set of roles a CRM user can hold.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleCompanyAdmin Role = "company_admin"
	RoleManager      Role = "manager"
	RoleUser         Role = "user"
)

// ParseRole validates a role read from storage or configuration.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(strings.ToLower(s))); r {
	case RoleSuperAdmin, RoleCompanyAdmin, RoleManager, RoleUser:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string {
	return string(r)
}

// IsAdmin reports whether the role administers a tenant.
func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleCompanyAdmin
}

// Permissions is an open set of fine-grained permission names.
type Permissions map[string]struct{}

// NewPermissions builds a set, dropping blank entries.
func NewPermissions(names ...string) Permissions {
	p := make(Permissions, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		p[n] = struct{}{}
	}
	return p
}

// ParsePermissions decodes the JSON array stored alongside a user.
// An empty or null document yields an empty set.
func ParsePermissions(raw []byte) (Permissions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Permissions{}, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("invalid permissions document: %w", err)
	}
	return NewPermissions(names...), nil
}

func (p Permissions) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// List returns the permissions sorted for stable output.
func (p Permissions) List() []string {
	out := make([]string, 0, len(p))
	for n := range p {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (p Permissions) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.List())
}

func (p *Permissions) UnmarshalJSON(data []byte) error {
	parsed, err := ParsePermissions(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
