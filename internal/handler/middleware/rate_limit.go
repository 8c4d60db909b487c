package middleware

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/metrics"
	"github.com/andressep95/crm-auth/internal/service"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/ratelimit"
	"github.com/andressep95/crm-auth/pkg/response"
)

// Policy describes one named limiter.
type Policy struct {
	Name   string
	Window time.Duration
	Max    int
	// MaxFor overrides Max per caller when set.
	MaxFor func(*domain.Identity) int
	Key    func(*fiber.Ctx) string
}

// AuthPolicy guards login: 5 attempts per ip and email every 15 minutes.
func AuthPolicy() Policy {
	return Policy{Name: "auth", Window: 15 * time.Minute, Max: 5, Key: ipAndEmailKey}
}

// TokenPolicy guards refresh: 10 per ip every 5 minutes.
func TokenPolicy() Policy {
	return Policy{Name: "token", Window: 5 * time.Minute, Max: 10, Key: ipKey}
}

// PasswordPolicy guards reset requests: 3 per ip and email every hour.
func PasswordPolicy() Policy {
	return Policy{Name: "password", Window: time.Hour, Max: 3, Key: ipAndEmailKey}
}

// GeneralPolicy applies role-tiered limits keyed by user, or ip when
// anonymous.
func GeneralPolicy() Policy {
	return Policy{Name: "general", Window: 15 * time.Minute, Max: 100, MaxFor: generalTier, Key: userOrIPKey}
}

func AdminPolicy() Policy {
	return Policy{Name: "admin", Window: 10 * time.Minute, Max: 50, Key: userOrIPKey}
}

func generalTier(id *domain.Identity) int {
	if id == nil {
		return 100
	}
	switch id.Role {
	case domain.RoleSuperAdmin:
		return 1000
	case domain.RoleCompanyAdmin:
		return 500
	case domain.RoleManager:
		return 300
	default:
		return 200
	}
}

func ipKey(c *fiber.Ctx) string {
	return c.IP()
}

func ipAndEmailKey(c *fiber.Ctx) string {
	var body struct {
		Email string `json:"email"`
	}
	_ = json.Unmarshal(c.Body(), &body)
	return c.IP() + ":" + strings.ToLower(strings.TrimSpace(body.Email))
}

func userOrIPKey(c *fiber.Ctx) string {
	if id := IdentityFrom(c); id != nil {
		return "user:" + id.ID.String()
	}
	return "ip:" + c.IP()
}

type RateLimitOptions struct {
	// Skip disables limiting entirely, e.g. in development.
	Skip bool
	// FailOpen lets requests through when the limiter backend errors.
	FailOpen bool
	// OverrideHeader names the header a super admin sends to bypass limits.
	OverrideHeader string
	Metrics        *metrics.Metrics
}

type RateLimiter struct {
	limiter ratelimit.Limiter
	authn   *service.Authenticator
	opts    RateLimitOptions
}

func NewRateLimiter(limiter ratelimit.Limiter, authn *service.Authenticator, opts RateLimitOptions) *RateLimiter {
	return &RateLimiter{limiter: limiter, authn: authn, opts: opts}
}

// Limit returns a handler enforcing p.
func (rl *RateLimiter) Limit(p Policy) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.opts.Skip {
			return c.Next()
		}

		limit := p.Max
		if p.MaxFor != nil {
			limit = p.MaxFor(IdentityFrom(c))
		}

		ctx := c.UserContext()
		decision, err := rl.limiter.Allow(ctx, p.Name+":"+p.Key(c), limit, p.Window)
		if err != nil {
			if rl.opts.FailOpen {
				logctx.From(ctx).Warn("rate_limit_check_failed_open", "limiter", p.Name, "error", err)
				return c.Next()
			}
			logctx.From(ctx).Error("rate_limit_check_failed", "limiter", p.Name, "error", err)
			return response.AuthError(c, domain.Internal(err))
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			if rl.overridden(c, p) {
				return c.Next()
			}
			rl.opts.Metrics.RateLimited(p.Name)
			logctx.From(ctx).Warn("rate_limit_exceeded",
				"limiter", p.Name,
				"ip", c.IP(),
				"path", c.Path(),
				"retry_after", decision.RetryAfter.String(),
			)
			return response.AuthError(c, domain.RateLimited(decision.RetryAfter))
		}
		return c.Next()
	}
}

// overridden reports whether a super admin asked to bypass the limiter. It
// is consulted only for requests that would be rejected. Without an
// identity in context the bearer token is verified before any store is
// queried. Requests from anyone else carrying the header are limited as
// usual.
func (rl *RateLimiter) overridden(c *fiber.Ctx, p Policy) bool {
	if rl.opts.OverrideHeader == "" {
		return false
	}
	reason := strings.TrimSpace(c.Get(rl.opts.OverrideHeader))
	if reason == "" {
		return false
	}

	ctx := c.UserContext()
	id := IdentityFrom(c)
	if id == nil && rl.authn != nil {
		header := c.Get(fiber.HeaderAuthorization)
		if _, err := rl.authn.VerifyBearer(header); err == nil {
			if auth, err := rl.authn.Authenticate(ctx, header); err == nil {
				id = auth.Identity
			}
		}
	}
	if id == nil || id.Role != domain.RoleSuperAdmin {
		logctx.From(ctx).Warn("rate_limit_override_rejected", "limiter", p.Name, "ip", c.IP(), "path", c.Path())
		return false
	}

	rl.opts.Metrics.RateLimitOverridden(p.Name)
	logctx.From(ctx).Warn("rate_limit_override",
		"limiter", p.Name,
		"actor_id", id.ID,
		"target", c.Method()+" "+c.Path(),
		"reason", reason,
	)
	return true
}
