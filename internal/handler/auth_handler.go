package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/handler/middleware"
	"github.com/andressep95/crm-auth/internal/service"
	"github.com/andressep95/crm-auth/pkg/response"
	"github.com/andressep95/crm-auth/pkg/validator"
)

type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validator
}

func NewAuthHandler(authService *service.AuthService, validator *validator.Validator) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   validator,
	}
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req service.LoginRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}

	resp, err := h.authService.Login(c.UserContext(), req, clientInfo(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, resp)
}

// Refresh exchanges a refresh token for a new pair
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req service.RefreshRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}

	resp, err := h.authService.Refresh(c.UserContext(), req, clientInfo(c))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, resp)
}

// Logout revokes the current access token and session
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	var req service.LogoutRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}

	if err := h.authService.Logout(c.UserContext(), middleware.AuthenticationFrom(c), req.RefreshToken); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusOK, fiber.Map{"message": "Logout realizado com sucesso"})
}

// ForgotPassword accepts a reset request
// POST /api/v1/auth/password/forgot
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req service.ForgotPasswordRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}

	if err := h.authService.ForgotPassword(c.UserContext(), req); err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.StatusAccepted, fiber.Map{
		"message": "Se o email estiver cadastrado, você receberá instruções para redefinir a senha",
	})
}

// Me returns the authenticated identity
// GET /api/v1/users/me
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return response.OK(c, fiber.StatusOK, middleware.IdentityFrom(c))
}
