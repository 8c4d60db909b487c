package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/handler/middleware"
	"github.com/andressep95/crm-auth/internal/service"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/response"
)

type AdminHandler struct {
	authService *service.AuthService
	revocations *service.RevocationService
	authz       *middleware.Authorization
}

func NewAdminHandler(authService *service.AuthService, revocations *service.RevocationService, authz *middleware.Authorization) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		revocations: revocations,
		authz:       authz,
	}
}

// ListUserSessions lists a user's active sessions
// GET /api/v1/admin/users/:userId/sessions
func (h *AdminHandler) ListUserSessions(c *fiber.Ctx) error {
	userID, ok, err := uuidParam(c, "userId")
	if !ok {
		return err
	}

	sessions, err := h.authService.AdminListSessions(c.UserContext(), middleware.IdentityFrom(c), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{
		"sessions": toSessionResponses(sessions, middleware.IdentityFrom(c).Session.ID),
		"total":    len(sessions),
	})
}

// RevokeUserSessions revokes every session of a user
// DELETE /api/v1/admin/users/:userId/sessions
func (h *AdminHandler) RevokeUserSessions(c *fiber.Ctx) error {
	userID, ok, err := uuidParam(c, "userId")
	if !ok {
		return err
	}

	n, err := h.authService.AdminRevokeSessions(c.UserContext(), middleware.IdentityFrom(c), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{"revoked": n})
}

// PurgeBlacklist removes expired blacklist entries
// POST /api/v1/admin/blacklist/purge
func (h *AdminHandler) PurgeBlacklist(c *fiber.Ctx) error {
	n, err := h.revocations.Purge(c.UserContext())
	if err != nil {
		return writeError(c, err)
	}
	logctx.From(c.UserContext()).Info("blacklist_purged", "actor_id", middleware.IdentityFrom(c).ID, "removed", n)
	return response.OK(c, fiber.StatusOK, fiber.Map{"removed": n})
}

func (h *AdminHandler) fail(c *fiber.Ctx, err error) error {
	var ae *domain.AuthError
	if errors.As(err, &ae) && ae.Kind == domain.KindAuthorization {
		h.authz.Denied(c, ae, []string{"same_company"})
	}
	return writeError(c, err)
}
