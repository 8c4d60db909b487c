package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/response"
)

// RecoveryMiddleware turns a panic into a generic 500 envelope. The panic
// value and stack only go to the log.
func RecoveryMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logctx.From(c.UserContext()).Error("panic_recovered",
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				err = response.AuthError(c, domain.Internal(fmt.Errorf("panic: %v", r)))
			}
		}()

		return c.Next()
	}
}
