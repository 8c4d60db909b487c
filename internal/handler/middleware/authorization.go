package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/metrics"
	"github.com/andressep95/crm-auth/internal/service"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/response"
)

// Authorization builds role and permission gates. They must run after
// AuthMiddleware.
type Authorization struct {
	logDenied bool
	metrics   *metrics.Metrics
}

func NewAuthorization(logDenied bool, m *metrics.Metrics) *Authorization {
	return &Authorization{logDenied: logDenied, metrics: m}
}

// RequireRole verifies that the user holds at least one of roles.
func (a *Authorization) RequireRole(roles ...domain.Role) fiber.Handler {
	return a.gate(roleNames(roles), func(id *domain.Identity) error {
		return service.RequireRole(id, roles...)
	})
}

func (a *Authorization) RequireTenantAdmin() fiber.Handler {
	return a.gate([]string{string(domain.RoleSuperAdmin), string(domain.RoleCompanyAdmin)}, service.RequireTenantAdmin)
}

func (a *Authorization) RequireSuperAdmin() fiber.Handler {
	return a.gate([]string{string(domain.RoleSuperAdmin)}, service.RequireSuperAdmin)
}

// RequirePermission verifies that the user carries perm.
func (a *Authorization) RequirePermission(perm string) fiber.Handler {
	return a.gate([]string{"permission:" + perm}, func(id *domain.Identity) error {
		return service.RequirePermission(id, perm)
	})
}

func (a *Authorization) gate(required []string, check func(*domain.Identity) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := IdentityFrom(c)
		if err := check(id); err != nil {
			ae := domain.AsAuthError(err)
			a.Denied(c, ae, required)
			return response.AuthError(c, ae)
		}
		return c.Next()
	}
}

// Denied records an authorization failure raised by a gate or a handler.
func (a *Authorization) Denied(c *fiber.Ctx, ae *domain.AuthError, required []string) {
	a.metrics.AuthzDenied(ae.Code)
	if !a.logDenied {
		return
	}
	attrs := []any{
		"code", ae.Code,
		"required_roles", required,
		"path", c.Path(),
		"ip", c.IP(),
	}
	if id := IdentityFrom(c); id != nil {
		attrs = append(attrs, "user_id", id.ID, "role", id.Role)
	}
	logctx.From(c.UserContext()).Warn("permission_denied", attrs...)
}

func roleNames(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = r.String()
	}
	return out
}
