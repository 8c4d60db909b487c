package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/handler/middleware"
)

// Middlewares are the prebuilt gates routes are composed from.
type Middlewares struct {
	Auth fiber.Handler
	// OptionalAuth attaches an identity when a token is sent.
	OptionalAuth fiber.Handler
	RateLimiter  *middleware.RateLimiter
	Authz        *middleware.Authorization
}

func SetupRoutes(
	app *fiber.App,
	authHandler *AuthHandler,
	sessionHandler *SessionHandler,
	adminHandler *AdminHandler,
	healthHandler *HealthHandler,
	mw Middlewares,
) {
	// Health checks (public)
	app.Get("/health", healthHandler.Health)
	app.Get("/ready", healthHandler.Ready)

	// API v1
	api := app.Group("/api/v1")
	general := mw.RateLimiter.Limit(middleware.GeneralPolicy())

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", mw.RateLimiter.Limit(middleware.AuthPolicy()), authHandler.Login)
	auth.Post("/refresh", mw.RateLimiter.Limit(middleware.TokenPolicy()), authHandler.Refresh)
	auth.Post("/password/forgot", mw.RateLimiter.Limit(middleware.PasswordPolicy()), mw.OptionalAuth, general, authHandler.ForgotPassword)
	auth.Post("/logout", mw.Auth, general, authHandler.Logout)

	// User routes (protected)
	users := api.Group("/users", mw.Auth, general)
	users.Get("/me", authHandler.Me)
	users.Get("/me/sessions", sessionHandler.GetMySessions)
	users.Delete("/me/sessions", sessionHandler.RevokeAllSessions)
	users.Delete("/me/sessions/:id", sessionHandler.RevokeSession)

	// Admin routes (tenant admins; tenant scoping is enforced per user)
	admin := api.Group("/admin", mw.Auth, mw.RateLimiter.Limit(middleware.AdminPolicy()), mw.Authz.RequireTenantAdmin())
	admin.Get("/users/:userId/sessions", adminHandler.ListUserSessions)
	admin.Delete("/users/:userId/sessions", adminHandler.RevokeUserSessions)
	admin.Post("/blacklist/purge", mw.Authz.RequireSuperAdmin(), adminHandler.PurgeBlacklist)
}
