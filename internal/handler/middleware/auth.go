package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/metrics"
	"github.com/andressep95/crm-auth/internal/service"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/response"
)

const (
	identityKey       = "identity"
	authenticationKey = "authentication"
)

type AuthOptions struct {
	// AuditSuccess logs every successful authentication at info level.
	AuditSuccess bool
	Metrics      *metrics.Metrics
}

// AuthMiddleware rejects the request unless the bearer token resolves to an
// active user with a live session.
func AuthMiddleware(authn *service.Authenticator, opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth, err := authn.Authenticate(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return rejectAuthentication(c, err, opts.Metrics)
		}
		accept(c, auth, opts)
		return c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous callers through without an
// identity. A presented token is still checked.
func OptionalAuthMiddleware(authn *service.Authenticator, opts AuthOptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth, err := authn.AuthenticateOptional(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return rejectAuthentication(c, err, opts.Metrics)
		}
		if auth != nil {
			accept(c, auth, opts)
		}
		return c.Next()
	}
}

// IdentityFrom returns the authenticated identity, or nil for anonymous
// requests.
func IdentityFrom(c *fiber.Ctx) *domain.Identity {
	id, _ := c.Locals(identityKey).(*domain.Identity)
	return id
}

// AuthenticationFrom returns the token and claims behind the identity.
func AuthenticationFrom(c *fiber.Ctx) *service.Authentication {
	auth, _ := c.Locals(authenticationKey).(*service.Authentication)
	return auth
}

func accept(c *fiber.Ctx, auth *service.Authentication, opts AuthOptions) {
	c.Locals(identityKey, auth.Identity)
	c.Locals(authenticationKey, auth)
	opts.Metrics.AuthSucceeded()

	if opts.AuditSuccess {
		logctx.From(c.UserContext()).Info("auth_succeeded",
			"user_id", auth.Identity.ID,
			"company_id", auth.Identity.CompanyID,
			"session_id", auth.Identity.Session.ID,
			"path", c.Path(),
		)
	}
}

func rejectAuthentication(c *fiber.Ctx, err error, m *metrics.Metrics) error {
	ae := domain.AsAuthError(err)
	m.AuthFailed(ae.Code)

	logger := logctx.From(c.UserContext())
	attrs := []any{
		"code", ae.Code,
		"ip", c.IP(),
		"user_agent", c.Get(fiber.HeaderUserAgent),
		"path", c.Path(),
	}
	if ae.Kind == domain.KindInternal {
		logger.Error("auth_failed", append(attrs, "error", ae.Err)...)
	} else {
		logger.Warn("auth_failed", attrs...)
	}
	return response.AuthError(c, ae)
}
