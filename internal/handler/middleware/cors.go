package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORSMiddleware allows the configured origins. Credentials are only
// allowed for an explicit origin list.
func CORSMiddleware(origins string) fiber.Handler {
	origins = strings.TrimSpace(origins)
	if origins == "" {
		origins = "*"
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,X-Request-ID,X-RateLimit-Override",
		ExposeHeaders:    "Retry-After,X-RateLimit-Limit,X-RateLimit-Remaining,X-Request-ID",
		AllowCredentials: origins != "*",
	})
}
