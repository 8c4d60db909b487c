package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

type ErrorKind string

const (
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindRateLimit      ErrorKind = "rate_limit"
	KindInternal       ErrorKind = "internal"
)

// Machine-readable codes returned in the error envelope.
const (
	CodeMissingToken       = "MISSING_TOKEN"
	CodeMalformedToken     = "MALFORMED_TOKEN"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodeExpiredToken       = "EXPIRED_TOKEN"
	CodeInvalidClaims      = "INVALID_TOKEN_CLAIMS"
	CodeRevokedToken       = "REVOKED_TOKEN"
	CodeUserInactive       = "USER_INACTIVE_OR_NOT_FOUND"
	CodeSessionInvalid     = "SESSION_INVALID_OR_EXPIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeAdminRequired      = "ADMIN_REQUIRED"
	CodeSuperAdminRequired = "SUPER_ADMIN_REQUIRED"
	CodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	CodeInternal           = "INTERNAL_AUTH_ERROR"
)

// AuthError is the single failure type crossing the auth boundary.
type AuthError struct {
	Kind       ErrorKind
	Code       string
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e *AuthError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// AsAuthError extracts an *AuthError from err, wrapping anything else as
// an internal failure.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

func unauthorized(code, message string, err error) *AuthError {
	return &AuthError{Kind: KindAuthentication, Code: code, Status: http.StatusUnauthorized, Message: message, Err: err}
}

func forbidden(code, message string) *AuthError {
	return &AuthError{Kind: KindAuthorization, Code: code, Status: http.StatusForbidden, Message: message}
}

func MissingToken() *AuthError {
	return unauthorized(CodeMissingToken, "Token de acesso requerido", nil)
}

func MalformedToken(err error) *AuthError {
	return unauthorized(CodeMalformedToken, "Token malformado", err)
}

func InvalidSignature(err error) *AuthError {
	return unauthorized(CodeInvalidSignature, "Token inválido", err)
}

func ExpiredToken(err error) *AuthError {
	return unauthorized(CodeExpiredToken, "Token expirado", err)
}

func InvalidClaims(err error) *AuthError {
	return unauthorized(CodeInvalidClaims, "Token inválido", err)
}

func TokenRevoked() *AuthError {
	return unauthorized(CodeRevokedToken, "Token inválido ou expirado", nil)
}

func UserInactiveOrNotFound() *AuthError {
	return unauthorized(CodeUserInactive, "Usuário não encontrado ou inativo", nil)
}

func SessionNotFound() *AuthError {
	return unauthorized(CodeSessionInvalid, "Sessão inválida ou expirada", nil)
}

func SessionExpired() *AuthError {
	return unauthorized(CodeSessionInvalid, "Sessão expirada", nil)
}

func InvalidCredentials() *AuthError {
	return unauthorized(CodeInvalidCredentials, "Credenciais inválidas", nil)
}

func InsufficientRole() *AuthError {
	return forbidden(CodeInsufficientRole, "Permissão insuficiente")
}

func AdminRequired() *AuthError {
	return forbidden(CodeAdminRequired, "Acesso restrito a administradores")
}

func SuperAdminRequired() *AuthError {
	return forbidden(CodeSuperAdminRequired, "Acesso restrito ao super administrador")
}

func RateLimited(retryAfter time.Duration) *AuthError {
	return &AuthError{
		Kind:       KindRateLimit,
		Code:       CodeRateLimited,
		Status:     http.StatusTooManyRequests,
		Message:    "Muitas requisições. Tente novamente mais tarde.",
		RetryAfter: retryAfter,
	}
}

func Internal(err error) *AuthError {
	return &AuthError{
		Kind:    KindInternal,
		Code:    CodeInternal,
		Status:  http.StatusInternalServerError,
		Message: "Erro interno de autenticação",
		Err:     err,
	}
}
