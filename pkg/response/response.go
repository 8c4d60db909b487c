// Package response writes the JSON envelopes shared by every endpoint.
package response

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/andressep95/crm-auth/internal/domain"
)

type errorEnvelope struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type dataEnvelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Clock is overridable in tests.
var Clock = time.Now

func timestamp() string {
	return Clock().UTC().Format(time.RFC3339)
}

// OK writes a success envelope.
func OK(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(dataEnvelope{Success: true, Data: data, Timestamp: timestamp()})
}

// Fail writes a failure envelope with an arbitrary code.
func Fail(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorEnvelope{Success: false, Error: message, Code: code, Timestamp: timestamp()})
}

// AuthError renders an auth failure. Wrapped causes are never exposed.
func AuthError(c *fiber.Ctx, err *domain.AuthError) error {
	body := errorEnvelope{
		Success:   false,
		Error:     err.Message,
		Code:      err.Code,
		Timestamp: timestamp(),
	}
	if secs := err.RetryAfterSeconds(); secs > 0 {
		body.RetryAfter = secs
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(secs))
	}
	return c.Status(err.Status).JSON(body)
}
