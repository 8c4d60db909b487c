package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
	"github.com/andressep95/crm-auth/internal/service"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/response"
	"github.com/andressep95/crm-auth/pkg/validator"
)

const (
	codeValidation = "VALIDATION_ERROR"
	codeBadRequest = "BAD_REQUEST"
	codeNotFound   = "NOT_FOUND"
)

// parseBody decodes and validates a JSON body, writing the 400 itself.
// ok is false when the response has already been written.
func parseBody(c *fiber.Ctx, v *validator.Validator, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, response.Fail(c, fiber.StatusBadRequest, codeBadRequest, "Corpo da requisição inválido")
	}
	if err := v.Validate(dst); err != nil {
		return false, response.Fail(c, fiber.StatusBadRequest, codeValidation, err.Error())
	}
	return true, nil
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, bool, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, false, response.Fail(c, fiber.StatusBadRequest, codeBadRequest, "Identificador inválido")
	}
	return id, true, nil
}

func clientInfo(c *fiber.Ctx) service.ClientInfo {
	return service.ClientInfo{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

// writeError renders service errors. Auth failures keep their envelope;
// missing rows become 404 and anything else a generic 500.
func writeError(c *fiber.Ctx, err error) error {
	var ae *domain.AuthError
	switch {
	case errors.As(err, &ae):
		if ae.Kind == domain.KindInternal {
			logctx.From(c.UserContext()).Error("request_failed", "code", ae.Code, "error", ae.Err)
		}
		return response.AuthError(c, ae)
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, repository.ErrNotFound):
		return response.Fail(c, fiber.StatusNotFound, codeNotFound, "Recurso não encontrado")
	default:
		logctx.From(c.UserContext()).Error("request_failed", "error", err)
		return response.AuthError(c, domain.Internal(err))
	}
}
