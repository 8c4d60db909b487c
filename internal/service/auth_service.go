package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/repository"
	"github.com/andressep95/crm-auth/pkg/hash"
	logctx "github.com/andressep95/crm-auth/pkg/log"
)

// ErrSessionNotFound is returned when a session does not exist or belongs
// to another user.
var ErrSessionNotFound = errors.New("session not found")

// TokenIssuer is the part of the token codec the auth service needs.
type TokenIssuer interface {
	GenerateTokenPair(userID uuid.UUID) (*domain.TokenPair, *domain.Claims, error)
	VerifyRefreshToken(token string) (*domain.Claims, error)
}

type AuthServiceConfig struct {
	SessionTimeout       time.Duration
	AuditLogTokenRefresh bool
}

type AuthService struct {
	users       repository.UserRepository
	sessions    repository.SessionRepository
	tokens      TokenIssuer
	revocations *RevocationService
	cfg         AuthServiceConfig
	now         func() time.Time
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ClientInfo describes the caller a session is opened for.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type LoginResponse struct {
	Tokens *domain.TokenPair `json:"tokens"`
	User   *domain.Identity  `json:"user"`
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens TokenIssuer,
	revocations *RevocationService,
	cfg AuthServiceConfig,
	now func() time.Time,
) *AuthService {
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:       users,
		sessions:    sessions,
		tokens:      tokens,
		revocations: revocations,
		cfg:         cfg,
		now:         now,
	}
}

// Login checks credentials and opens a session bound to a fresh access
// token. Unknown emails and wrong passwords fail identically.
func (s *AuthService) Login(ctx context.Context, req LoginRequest, client ClientInfo) (*LoginResponse, error) {
	user, company, err := s.users.GetByEmailWithCompany(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		hash.BurnVerification(req.Password)
		return nil, domain.InvalidCredentials()
	}
	if err != nil {
		return nil, domain.Internal(err)
	}

	valid, err := hash.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		logctx.From(ctx).Warn("password_hash_unreadable", "user_id", user.ID, "error", err)
		return nil, domain.InvalidCredentials()
	}
	if !valid {
		return nil, domain.InvalidCredentials()
	}
	if !user.IsActive() || !company.IsActive() {
		return nil, domain.UserInactiveOrNotFound()
	}

	resp, err := s.openSession(ctx, user, company, client)
	if err != nil {
		return nil, err
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		logctx.From(ctx).Warn("last_login_update_failed", "user_id", user.ID, "error", err)
	}
	return resp, nil
}

// Refresh rotates a refresh token. The token must belong to a session
// that has not been revoked; that session is retired and a new pair with
// its own session is issued. Redeeming the token is atomic, so a replayed
// token fails even when it races the legitimate client.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest, client ClientInfo) (*LoginResponse, error) {
	claims, err := s.tokens.VerifyRefreshToken(req.RefreshToken)
	if err != nil {
		return nil, verifyError(err)
	}

	revoked, err := s.revocations.IsRevoked(ctx, req.RefreshToken)
	if err != nil {
		return nil, domain.Internal(err)
	}
	if revoked {
		return nil, domain.TokenRevoked()
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.InvalidClaims(err)
	}

	previous, err := s.sessions.FindByRefreshToken(ctx, userID, claims.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.SessionNotFound()
	}
	if err != nil {
		return nil, domain.Internal(err)
	}
	if !previous.Refreshable() {
		return nil, domain.SessionNotFound()
	}

	user, company, err := s.users.GetWithCompany(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.UserInactiveOrNotFound()
	}
	if err != nil {
		return nil, domain.Internal(err)
	}
	if !user.IsActive() || !company.IsActive() {
		return nil, domain.UserInactiveOrNotFound()
	}

	claimed, err := s.revocations.Claim(ctx, req.RefreshToken, claims.ExpiresAtTime())
	if err != nil {
		return nil, domain.Internal(err)
	}
	if !claimed {
		logctx.From(ctx).Warn("refresh_token_replayed", "user_id", userID, "session_id", previous.ID)
		return nil, domain.TokenRevoked()
	}
	if err := s.sessions.Revoke(ctx, previous.ID); err != nil {
		return nil, domain.Internal(err)
	}

	resp, err := s.openSession(ctx, user, company, client)
	if err != nil {
		return nil, err
	}

	if s.cfg.AuditLogTokenRefresh {
		logctx.From(ctx).Info("token_refreshed",
			"user_id", user.ID,
			"company_id", company.ID,
			"previous_session_id", previous.ID,
			"session_id", resp.User.Session.ID,
		)
	}
	return resp, nil
}

// Logout revokes the access token and its session, which also disables
// the session's refresh token. A refresh token in the body is blacklisted
// as well.
func (s *AuthService) Logout(ctx context.Context, auth *Authentication, refreshToken string) error {
	if err := s.revocations.Revoke(ctx, auth.Token, auth.Claims.ExpiresAtTime()); err != nil {
		return domain.Internal(err)
	}
	if err := s.sessions.Revoke(ctx, auth.Identity.Session.ID); err != nil {
		return domain.Internal(err)
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil || claims.Subject != auth.Identity.ID.String() {
		logctx.From(ctx).Debug("logout_refresh_token_ignored", "user_id", auth.Identity.ID)
		return nil
	}
	if err := s.revocations.Revoke(ctx, refreshToken, claims.ExpiresAtTime()); err != nil {
		return domain.Internal(err)
	}
	return nil
}

// ForgotPassword accepts a reset request without revealing whether the
// account exists.
func (s *AuthService) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	user, _, err := s.users.GetByEmailWithCompany(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return domain.Internal(err)
	}
	logctx.From(ctx).Info("password_reset_requested", "user_id", user.ID)
	return nil
}

func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID, s.now())
	if err != nil {
		return nil, domain.Internal(err)
	}
	return sessions, nil
}

// RevokeSession revokes one session owned by userID, along with its
// refresh token.
func (s *AuthService) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return domain.Internal(err)
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return domain.Internal(err)
	}
	return nil
}

// RevokeAllSessions revokes every session of userID except keep. Refresh
// tokens issued with those sessions stop working too.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID uuid.UUID, keep *uuid.UUID) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID, keep)
	if err != nil {
		return 0, domain.Internal(err)
	}
	return n, nil
}

// AdminListSessions lists a user's sessions on behalf of a tenant admin.
func (s *AuthService) AdminListSessions(ctx context.Context, actor *domain.Identity, userID uuid.UUID) ([]*domain.Session, error) {
	if err := s.authorizeTarget(ctx, actor, userID); err != nil {
		return nil, err
	}
	return s.ListSessions(ctx, userID)
}

// AdminRevokeSessions force-expires every session of a user.
func (s *AuthService) AdminRevokeSessions(ctx context.Context, actor *domain.Identity, userID uuid.UUID) (int64, error) {
	if err := s.authorizeTarget(ctx, actor, userID); err != nil {
		return 0, err
	}
	n, err := s.RevokeAllSessions(ctx, userID, nil)
	if err != nil {
		return 0, err
	}
	logctx.From(ctx).Info("sessions_revoked_by_admin",
		"actor_id", actor.ID,
		"target_user_id", userID,
		"count", n,
	)
	return n, nil
}

// authorizeTarget lets super admins see that a user does not exist; tenant
// admins get the same 403 for unknown users and users of other tenants.
func (s *AuthService) authorizeTarget(ctx context.Context, actor *domain.Identity, userID uuid.UUID) error {
	if err := RequireTenantAdmin(actor); err != nil {
		return err
	}
	target, _, err := s.users.GetWithCompany(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		if actor.Role != domain.RoleSuperAdmin {
			return domain.AdminRequired()
		}
		return fmt.Errorf("user %s: %w", userID, repository.ErrNotFound)
	}
	if err != nil {
		return domain.Internal(err)
	}
	return RequireSameTenant(actor, target)
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User, company *domain.Company, client ClientInfo) (*LoginResponse, error) {
	pair, claims, err := s.tokens.GenerateTokenPair(user.ID)
	if err != nil {
		return nil, domain.Internal(err)
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:             uuid.New(),
		UserID:         user.ID,
		TokenID:        claims.ID,
		RefreshTokenID: pair.RefreshTokenID,
		Status:         domain.SessionStatusActive,
		UserAgent:      client.UserAgent,
		IPAddress:      client.IPAddress,
		ExpiresAt:      now.Add(s.cfg.SessionTimeout),
		LastActivityAt: now,
		CreatedAt:      now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, domain.Internal(err)
	}

	return &LoginResponse{
		Tokens: pair,
		User:   domain.NewIdentity(user, company, session),
	}, nil
}
