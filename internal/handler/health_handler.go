package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	logctx "github.com/andressep95/crm-auth/pkg/log"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// Health returns basic health status
// GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":  "ok",
		"service": "crm-auth",
	})
}

// Ready pings every dependency
// GET /ready
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	status := fiber.StatusOK
	results := fiber.Map{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logctx.From(ctx).Warn("readiness_check_failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != fiber.StatusOK {
		state = "not_ready"
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state,
		"checks": results,
	})
}
