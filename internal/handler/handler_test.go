package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/handler/middleware"
	"github.com/andressep95/crm-auth/internal/service"
	"github.com/andressep95/crm-auth/internal/testutil"
	"github.com/andressep95/crm-auth/pkg/hash"
	"github.com/andressep95/crm-auth/pkg/jwt"
	"github.com/andressep95/crm-auth/pkg/ratelimit"
	"github.com/andressep95/crm-auth/pkg/validator"
)

const password = "s3cret-passphrase"

type testServer struct {
	app      *fiber.App
	clock    *testutil.Clock
	users    *testutil.UserStore
	sessions *testutil.SessionStore
	company  *domain.Company
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	tokens, err := jwt.NewTokenService(jwt.Config{
		AccessSecret:  []byte("access-secret-for-handler-tests-000000"),
		RefreshSecret: []byte("refresh-secret-for-handler-tests-00000"),
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		Issuer:        "crm-api",
		Audience:      "crm-client",
	}, jwt.WithClock(clock.Now))
	require.NoError(t, err)

	users := testutil.NewUserStore()
	sessions := testutil.NewSessionStore()
	revocations := service.NewRevocationService(testutil.NewBlacklistStore(), true, nil, clock.Now)
	authn := service.NewAuthenticator(tokens, revocations, users, sessions, service.AuthenticatorConfig{
		SessionTimeout:  time.Hour,
		RevocationFirst: true,
	}, clock.Now)
	authService := service.NewAuthService(users, sessions, tokens, revocations, service.AuthServiceConfig{
		SessionTimeout: time.Hour,
	}, clock.Now)
	authz := middleware.NewAuthorization(true, nil)

	app := fiber.New()
	app.Use(middleware.RecoveryMiddleware())
	app.Use(middleware.LoggerMiddleware(slog.New(slog.NewTextHandler(io.Discard, nil))))
	SetupRoutes(app,
		NewAuthHandler(authService, validator.NewValidator()),
		NewSessionHandler(authService),
		NewAdminHandler(authService, revocations, authz),
		NewHealthHandler(map[string]Check{
			"database": func(context.Context) error { return nil },
		}),
		Middlewares{
			Auth:         middleware.AuthMiddleware(authn, middleware.AuthOptions{}),
			OptionalAuth: middleware.OptionalAuthMiddleware(authn, middleware.AuthOptions{}),
			RateLimiter:  middleware.NewRateLimiter(ratelimit.NewMemoryLimiter(ratelimit.WithClock(clock.Now)), authn, middleware.RateLimitOptions{}),
			Authz:        authz,
		},
	)

	return &testServer{
		app:      app,
		clock:    clock,
		users:    users,
		sessions: sessions,
		company:  &domain.Company{ID: uuid.New(), Name: "Acme", Status: domain.CompanyStatusActive},
	}
}

func (s *testServer) addUser(t *testing.T, email string, role domain.Role, company *domain.Company) *domain.User {
	t.Helper()
	pw, err := hash.HashPasswordWithConfig(password, hash.Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	u := &domain.User{ID: uuid.New(), Name: email, Email: email, PasswordHash: pw, Role: role, Status: domain.UserStatusActive}
	s.users.Put(u, company)
	return u
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	RetryAfter int             `json:"retryAfter"`
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env))
	}
	return resp.StatusCode, env
}

func (s *testServer) login(t *testing.T, email string) service.LoginResponse {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"`+email+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, status, env.Error)
	var resp service.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	return resp
}

func TestLoginMeLogout(t *testing.T) {
	s := newTestServer(t)
	user := s.addUser(t, "ana@acme.test", domain.RoleManager, s.company)

	login := s.login(t, "ana@acme.test")
	token := login.Tokens.AccessToken

	s.clock.Advance(10 * time.Second)
	status, env := s.do(t, http.MethodGet, "/api/v1/users/me", token, "")
	require.Equal(t, http.StatusOK, status)

	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	require.Equal(t, user.ID.String(), me["id"])
	require.Equal(t, s.company.ID.String(), me["companyId"])
	require.Equal(t, "manager", me["role"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/auth/logout", token, `{"refresh_token":"`+login.Tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/users/me", token, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeRevokedToken, env.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+login.Tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeRevokedToken, env.Code)
}

func TestLogin_ValidationAndCredentials(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeValidation, env.Code)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/login", "", `{"email":"ana@acme.test","password":"nope"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeInvalidCredentials, env.Code)
	require.Equal(t, "Credenciais inválidas", env.Error)
}

func TestLogin_RateLimited(t *testing.T) {
	s := newTestServer(t)
	body := `{"email":"ghost@acme.test","password":"whatever"}`

	for i := 0; i < 5; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		require.Equal(t, http.StatusUnauthorized, status)
	}
	status, env := s.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, 900, env.RetryAfter)
}

func TestSessionsEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)

	first := s.login(t, "ana@acme.test")
	s.clock.Advance(time.Second)
	second := s.login(t, "ana@acme.test")

	status, env := s.do(t, http.MethodGet, "/api/v1/users/me/sessions", second.Tokens.AccessToken, "")
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Sessions []SessionResponse `json:"sessions"`
		Total    int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 2, list.Total)
	require.True(t, list.Sessions[0].IsCurrent)
	require.False(t, list.Sessions[1].IsCurrent)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/me/sessions/"+uuid.NewString(), second.Tokens.AccessToken, "")
	require.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/me/sessions/not-a-uuid", second.Tokens.AccessToken, "")
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodDelete, "/api/v1/users/me/sessions?exclude_current=true", second.Tokens.AccessToken, "")
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodGet, "/api/v1/users/me", first.Tokens.AccessToken, "")
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeSessionInvalid, env.Code)

	status, _ = s.do(t, http.MethodGet, "/api/v1/users/me", second.Tokens.AccessToken, "")
	require.Equal(t, http.StatusOK, status)
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	other := &domain.Company{ID: uuid.New(), Name: "Globex", Status: domain.CompanyStatusActive}

	target := s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)
	s.addUser(t, "admin@acme.test", domain.RoleCompanyAdmin, s.company)
	s.addUser(t, "admin@globex.test", domain.RoleCompanyAdmin, other)
	s.addUser(t, "root@globex.test", domain.RoleSuperAdmin, other)

	s.login(t, "ana@acme.test")
	admin := s.login(t, "admin@acme.test").Tokens.AccessToken
	foreign := s.login(t, "admin@globex.test").Tokens.AccessToken
	root := s.login(t, "root@globex.test").Tokens.AccessToken
	user := s.login(t, "ana@acme.test").Tokens.AccessToken
	path := "/api/v1/admin/users/" + target.ID.String() + "/sessions"

	status, env := s.do(t, http.MethodGet, path, user, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, domain.CodeAdminRequired, env.Code)

	status, env = s.do(t, http.MethodGet, path, foreign, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, domain.CodeAdminRequired, env.Code)

	status, _ = s.do(t, http.MethodGet, path, admin, "")
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, "/api/v1/admin/blacklist/purge", admin, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, domain.CodeSuperAdminRequired, env.Code)

	status, _ = s.do(t, http.MethodPost, "/api/v1/admin/blacklist/purge", root, "")
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodDelete, path, root, "")
	require.Equal(t, http.StatusOK, status)
	var revoked struct {
		Revoked int `json:"revoked"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &revoked))
	require.Equal(t, 2, revoked.Revoked)

	status, _ = s.do(t, http.MethodGet, "/api/v1/users/me", user, "")
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestForgotPassword(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(t, http.MethodPost, "/api/v1/auth/password/forgot", "", `{"email":"ghost@acme.test"}`)
	require.Equal(t, http.StatusAccepted, status)
	require.True(t, env.Success)
}

func TestForgotPassword_OptionalIdentity(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)
	token := s.login(t, "ana@acme.test").Tokens.AccessToken

	forgot := func(email, bearer string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/password/forgot", strings.NewReader(`{"email":"`+email+`"}`))
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		return resp
	}

	resp := forgot("ghost@acme.test", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "100", resp.Header.Get("X-RateLimit-Limit"))

	resp = forgot("ana@acme.test", token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Equal(t, "200", resp.Header.Get("X-RateLimit-Limit"))

	resp = forgot("bob@acme.test", "not-a-token")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefresh_RejectedAfterAdminRevocation(t *testing.T) {
	s := newTestServer(t)
	target := s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)
	s.addUser(t, "admin@acme.test", domain.RoleCompanyAdmin, s.company)

	login := s.login(t, "ana@acme.test")
	admin := s.login(t, "admin@acme.test").Tokens.AccessToken

	status, _ := s.do(t, http.MethodDelete, "/api/v1/admin/users/"+target.ID.String()+"/sessions", admin, "")
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+login.Tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeSessionInvalid, env.Code)

	status, env = s.do(t, http.MethodGet, "/api/v1/admin/users/"+uuid.NewString()+"/sessions", admin, "")
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, domain.CodeAdminRequired, env.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodGet, "/ready", "", "")
	require.Equal(t, http.StatusOK, status)

	h := NewHealthHandler(map[string]Check{"database": func(context.Context) error { return errors.New("down") }})
	app := fiber.New()
	app.Get("/ready", h.Ready)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPurgeBlacklist_RemovesExpiredEntries(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "ana@acme.test", domain.RoleUser, s.company)
	s.addUser(t, "root@acme.test", domain.RoleSuperAdmin, s.company)

	login := s.login(t, "ana@acme.test")
	status, _ := s.do(t, http.MethodPost, "/api/v1/auth/logout", login.Tokens.AccessToken, `{"refresh_token":"`+login.Tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, status)

	// access entry lapses after an hour, refresh entry after a day
	s.clock.Advance(2 * time.Hour)
	root := s.login(t, "root@acme.test").Tokens.AccessToken

	status, env := s.do(t, http.MethodPost, "/api/v1/admin/blacklist/purge", root, "")
	require.Equal(t, http.StatusOK, status)
	var purged struct {
		Removed int64 `json:"removed"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &purged))
	require.Equal(t, int64(1), purged.Removed)

	status, env = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"`+login.Tokens.RefreshToken+`"}`)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, domain.CodeRevokedToken, env.Code)
}
