package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/testutil"
	"github.com/andressep95/crm-auth/pkg/hash"
	"github.com/andressep95/crm-auth/pkg/jwt"
)

var fastArgon = hash.Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

const testPassword = "correct horse battery staple"

type fixtureConfig struct {
	authn          AuthenticatorConfig
	sessionTimeout time.Duration
	failOpen       bool
}

type fixture struct {
	clock       *testutil.Clock
	tokens      *jwt.TokenService
	users       *testutil.UserStore
	sessions    *testutil.SessionStore
	blacklist   *testutil.BlacklistStore
	revocations *RevocationService
	authn       *Authenticator
	auth        *AuthService
	user        *domain.User
	company     *domain.Company
}

func defaultFixtureConfig() fixtureConfig {
	return fixtureConfig{
		authn:          AuthenticatorConfig{SessionTimeout: time.Hour, RevocationFirst: true},
		sessionTimeout: time.Hour,
		failOpen:       true,
	}
}

func newFixture(t *testing.T, cfg fixtureConfig) *fixture {
	t.Helper()

	clock := testutil.NewClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	tokens, err := jwt.NewTokenService(jwt.Config{
		AccessSecret:  []byte("access-secret-for-service-tests-000000"),
		RefreshSecret: []byte("refresh-secret-for-service-tests-00000"),
		AccessTTL:     time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "crm-api",
		Audience:      "crm-client",
	}, jwt.WithClock(clock.Now))
	require.NoError(t, err)

	pw, err := hash.HashPasswordWithConfig(testPassword, fastArgon)
	require.NoError(t, err)

	company := &domain.Company{
		ID:      uuid.New(),
		Name:    "Acme",
		Domain:  "acme.test",
		Plan:    "pro",
		Modules: []string{"crm"},
		Status:  domain.CompanyStatusActive,
	}
	user := &domain.User{
		ID:           uuid.New(),
		Name:         "Ana",
		Email:        "ana@acme.test",
		PasswordHash: pw,
		Role:         domain.RoleUser,
		Permissions:  domain.NewPermissions("contacts.read"),
		Status:       domain.UserStatusActive,
	}

	users := testutil.NewUserStore()
	users.Put(user, company)
	sessions := testutil.NewSessionStore()
	blacklist := testutil.NewBlacklistStore()

	revocations := NewRevocationService(blacklist, cfg.failOpen, nil, clock.Now)
	return &fixture{
		clock:       clock,
		tokens:      tokens,
		users:       users,
		sessions:    sessions,
		blacklist:   blacklist,
		revocations: revocations,
		authn:       NewAuthenticator(tokens, revocations, users, sessions, cfg.authn, clock.Now),
		auth: NewAuthService(users, sessions, tokens, revocations, AuthServiceConfig{
			SessionTimeout: cfg.sessionTimeout,
		}, clock.Now),
		user:    user,
		company: company,
	}
}

func (f *fixture) login(t *testing.T) *LoginResponse {
	t.Helper()
	resp, err := f.auth.Login(context.Background(), LoginRequest{Email: f.user.Email, Password: testPassword}, ClientInfo{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	return resp
}

func requireAuthError(t *testing.T, err error, code string, status int) *domain.AuthError {
	t.Helper()
	var ae *domain.AuthError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, code, ae.Code)
	require.Equal(t, status, ae.Status)
	return ae
}
