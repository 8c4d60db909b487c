package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/handler/middleware"
	"github.com/andressep95/crm-auth/internal/service"
	"github.com/andressep95/crm-auth/pkg/response"
)

type SessionHandler struct {
	authService *service.AuthService
}

func NewSessionHandler(authService *service.AuthService) *SessionHandler {
	return &SessionHandler{
		authService: authService,
	}
}

// SessionResponse represents a session without its token binding
type SessionResponse struct {
	ID             string `json:"id"`
	UserAgent      string `json:"user_agent,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	ExpiresAt      string `json:"expires_at"`
	LastActivityAt string `json:"last_activity_at"`
	CreatedAt      string `json:"created_at"`
	IsCurrent      bool   `json:"is_current"`
}

func toSessionResponses(sessions []*domain.Session, current uuid.UUID) []SessionResponse {
	out := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = SessionResponse{
			ID:             s.ID.String(),
			UserAgent:      s.UserAgent,
			IPAddress:      s.IPAddress,
			ExpiresAt:      s.ExpiresAt.UTC().Format(time.RFC3339),
			LastActivityAt: s.LastActivityAt.UTC().Format(time.RFC3339),
			CreatedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
			IsCurrent:      s.ID == current,
		}
	}
	return out
}

// GetMySessions lists all active sessions for the current user
// GET /api/v1/users/me/sessions
func (h *SessionHandler) GetMySessions(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	sessions, err := h.authService.ListSessions(c.UserContext(), id.ID)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{
		"sessions": toSessionResponses(sessions, id.Session.ID),
		"total":    len(sessions),
	})
}

// RevokeSession ends one of the current user's sessions
// DELETE /api/v1/users/me/sessions/:id
func (h *SessionHandler) RevokeSession(c *fiber.Ctx) error {
	sessionID, ok, err := uuidParam(c, "id")
	if !ok {
		return err
	}

	if err := h.authService.RevokeSession(c.UserContext(), middleware.IdentityFrom(c).ID, sessionID); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "Sessão encerrada"})
}

// RevokeAllSessions ends every session of the current user
// DELETE /api/v1/users/me/sessions?exclude_current=true
func (h *SessionHandler) RevokeAllSessions(c *fiber.Ctx) error {
	id := middleware.IdentityFrom(c)

	var keep *uuid.UUID
	if c.QueryBool("exclude_current", false) {
		current := id.Session.ID
		keep = &current
	}

	n, err := h.authService.RevokeAllSessions(c.UserContext(), id.ID, keep)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{"revoked": n})
}
