package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	logctx "github.com/andressep95/crm-auth/pkg/log"
)

// RequestID tags every request with an X-Request-ID.
func RequestID() fiber.Handler {
	return requestid.New()
}

// LoggerMiddleware puts a request-scoped logger into the user context and
// logs each completed request.
func LoggerMiddleware(base *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		logger := base.With(
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"method", c.Method(),
			"path", c.Path(),
			"ip", c.IP(),
		)
		c.SetUserContext(logctx.Into(c.UserContext(), logger))

		err := c.Next()

		logger.Debug("request_completed",
			"status", c.Response().StatusCode(),
			"latency", time.Since(start).String(),
		)
		return err
	}
}
