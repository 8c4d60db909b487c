package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/andressep95/crm-auth/internal/domain"
)

func decode(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestAuthErrorEnvelope(t *testing.T) {
	Clock = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { Clock = time.Now })

	app := fiber.New()
	app.Get("/unauth", func(c *fiber.Ctx) error {
		return AuthError(c, domain.ExpiredToken(errors.New("secret cause")))
	})
	app.Get("/limited", func(c *fiber.Ctx) error {
		return AuthError(c, domain.RateLimited(1500*time.Millisecond))
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/unauth", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	body := decode(t, resp.Body)
	require.Equal(t, false, body["success"])
	require.Equal(t, "Token expirado", body["error"])
	require.Equal(t, domain.CodeExpiredToken, body["code"])
	require.Equal(t, "2026-01-02T03:04:05Z", body["timestamp"])
	require.NotContains(t, body, "retryAfter")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/limited", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "2", resp.Header.Get(fiber.HeaderRetryAfter))
	body = decode(t, resp.Body)
	require.EqualValues(t, 2, body["retryAfter"])
}

func TestOKEnvelope(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return OK(c, fiber.StatusOK, fiber.Map{"hello": "world"})
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	body := decode(t, resp.Body)
	require.Equal(t, true, body["success"])
	require.Equal(t, "world", body["data"].(map[string]interface{})["hello"])
}
