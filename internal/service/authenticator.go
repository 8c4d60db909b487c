package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
	"github.com/andressep95/crm-auth/pkg/jwt"
	logctx "github.com/andressep95/crm-auth/pkg/log"
)

// AccessTokenVerifier is the part of the token codec the authenticator needs.
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*domain.Claims, error)
}

type AuthenticatorConfig struct {
	SessionTimeout   time.Duration
	ExtendOnActivity bool
	// RevocationFirst checks the blacklist before verifying the signature.
	// When false the cheaper signature check runs first.
	RevocationFirst bool
	// DowngradeInvalidOptional turns 401 failures on optional-auth routes
	// into anonymous access. By default only a missing header does.
	DowngradeInvalidOptional bool
}

// Authentication is the outcome of a successful pipeline run.
type Authentication struct {
	Identity *domain.Identity
	Token    string
	Claims   *domain.Claims
}

// authState carries the values produced by earlier steps to later ones.
type authState struct {
	token   string
	claims  *domain.Claims
	user    *domain.User
	company *domain.Company
	session *domain.Session
}

type authStep func(ctx context.Context, st *authState) error

// Authenticator turns an Authorization header into an Identity by running
// a fixed sequence of checks. The first failing check ends the run.
type Authenticator struct {
	tokens      AccessTokenVerifier
	revocations *RevocationService
	users       repository.UserRepository
	sessions    repository.SessionRepository
	cfg         AuthenticatorConfig
	now         func() time.Time
	pipeline    []authStep
}

func NewAuthenticator(
	tokens AccessTokenVerifier,
	revocations *RevocationService,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	cfg AuthenticatorConfig,
	now func() time.Time,
) *Authenticator {
	if now == nil {
		now = time.Now
	}
	a := &Authenticator{
		tokens:      tokens,
		revocations: revocations,
		users:       users,
		sessions:    sessions,
		cfg:         cfg,
		now:         now,
	}

	if cfg.RevocationFirst {
		a.pipeline = []authStep{a.checkRevocation, a.verifyToken}
	} else {
		a.pipeline = []authStep{a.verifyToken, a.checkRevocation}
	}
	a.pipeline = append(a.pipeline, a.loadUser, a.loadSession, a.touchSession)
	return a
}

// Authenticate runs the full pipeline. Every failure is a *domain.AuthError.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (*Authentication, error) {
	token, err := ExtractBearer(header)
	if err != nil {
		return nil, err
	}

	st := &authState{token: token}
	for _, step := range a.pipeline {
		if err := step(ctx, st); err != nil {
			return nil, err
		}
	}

	return &Authentication{
		Identity: domain.NewIdentity(st.user, st.company, st.session),
		Token:    token,
		Claims:   st.claims,
	}, nil
}

// VerifyBearer checks only the token's signature and claims. It touches no
// store, so callers can use it to discard forged tokens cheaply.
func (a *Authenticator) VerifyBearer(header string) (*domain.Claims, error) {
	token, err := ExtractBearer(header)
	if err != nil {
		return nil, err
	}
	claims, err := a.tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, verifyError(err)
	}
	return claims, nil
}

// AuthenticateOptional returns nil without error for anonymous callers.
func (a *Authenticator) AuthenticateOptional(ctx context.Context, header string) (*Authentication, error) {
	if strings.TrimSpace(header) == "" {
		return nil, nil
	}
	auth, err := a.Authenticate(ctx, header)
	if err == nil {
		return auth, nil
	}
	if ae := domain.AsAuthError(err); a.cfg.DowngradeInvalidOptional && ae.Kind == domain.KindAuthentication {
		logctx.From(ctx).Debug("optional_auth_downgraded", "code", ae.Code)
		return nil, nil
	}
	return nil, err
}

// ExtractBearer pulls the token out of an Authorization header. The scheme
// is matched case-insensitively.
func ExtractBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", domain.MissingToken()
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", domain.MalformedToken(errors.New("authorization header is not a bearer credential"))
	}
	return token, nil
}

func (a *Authenticator) checkRevocation(ctx context.Context, st *authState) error {
	revoked, err := a.revocations.IsRevoked(ctx, st.token)
	if err != nil {
		return domain.Internal(err)
	}
	if revoked {
		return domain.TokenRevoked()
	}
	return nil
}

func (a *Authenticator) verifyToken(_ context.Context, st *authState) error {
	claims, err := a.tokens.VerifyAccessToken(st.token)
	if err != nil {
		return verifyError(err)
	}
	st.claims = claims
	return nil
}

func (a *Authenticator) loadUser(ctx context.Context, st *authState) error {
	userID, err := uuid.Parse(st.claims.Subject)
	if err != nil {
		return domain.InvalidClaims(err)
	}

	user, company, err := a.users.GetWithCompany(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.UserInactiveOrNotFound()
	}
	if err != nil {
		return domain.Internal(err)
	}
	if !user.IsActive() || !company.IsActive() {
		return domain.UserInactiveOrNotFound()
	}

	st.user, st.company = user, company
	return nil
}

func (a *Authenticator) loadSession(ctx context.Context, st *authState) error {
	session, err := a.sessions.FindActive(ctx, st.user.ID, st.claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SessionNotFound()
	}
	if err != nil {
		return domain.Internal(err)
	}

	if session.ExpiredAt(a.now()) {
		if err := a.sessions.Expire(ctx, session.ID); err != nil {
			logctx.From(ctx).Warn("session_expire_failed", "session_id", session.ID, "error", err)
		}
		return domain.SessionExpired()
	}

	st.session = session
	return nil
}

// touchSession slides the session deadline. A failed touch does not fail
// the request; the session stays valid until its current deadline.
func (a *Authenticator) touchSession(ctx context.Context, st *authState) error {
	if !a.cfg.ExtendOnActivity {
		return nil
	}
	now := a.now()
	expiresAt := now.Add(a.cfg.SessionTimeout)
	if err := a.sessions.Touch(ctx, st.session.ID, expiresAt, now); err != nil {
		logctx.From(ctx).Warn("session_touch_failed", "session_id", st.session.ID, "error", err)
		return nil
	}
	st.session.ExpiresAt = expiresAt
	st.session.LastActivityAt = now
	return nil
}

// verifyError maps codec failures onto the 401 taxonomy.
func verifyError(err error) *domain.AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ExpiredToken(err)
	case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrUnexpectedTokenUse):
		return domain.InvalidSignature(err)
	case errors.Is(err, jwt.ErrIssuerMismatch), errors.Is(err, jwt.ErrAudienceMismatch):
		return domain.InvalidClaims(err)
	default:
		return domain.MalformedToken(err)
	}
}
