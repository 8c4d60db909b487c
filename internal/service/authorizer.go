package service

import (
	"github.com/andressep95/crm-auth/internal/domain"
)

// RequireRole passes when the identity holds one of allowed.
func RequireRole(id *domain.Identity, allowed ...domain.Role) error {
	if id == nil {
		return domain.MissingToken()
	}
	if !id.HasRole(allowed...) {
		return domain.InsufficientRole()
	}
	return nil
}

// RequireTenantAdmin passes for company admins and super admins.
func RequireTenantAdmin(id *domain.Identity) error {
	if id == nil {
		return domain.MissingToken()
	}
	if !id.Role.IsAdmin() {
		return domain.AdminRequired()
	}
	return nil
}

func RequireSuperAdmin(id *domain.Identity) error {
	if id == nil {
		return domain.MissingToken()
	}
	if id.Role != domain.RoleSuperAdmin {
		return domain.SuperAdminRequired()
	}
	return nil
}

// RequirePermission passes when the identity carries perm. Super admins
// hold every permission.
func RequirePermission(id *domain.Identity, perm string) error {
	if id == nil {
		return domain.MissingToken()
	}
	if id.Role == domain.RoleSuperAdmin || id.Permissions.Has(perm) {
		return nil
	}
	return domain.InsufficientRole()
}

// RequireSameTenant lets tenant admins act only inside their own company.
func RequireSameTenant(actor *domain.Identity, target *domain.User) error {
	if err := RequireTenantAdmin(actor); err != nil {
		return err
	}
	if actor.Role == domain.RoleSuperAdmin || actor.CompanyID == target.CompanyID {
		return nil
	}
	return domain.AdminRequired()
}
