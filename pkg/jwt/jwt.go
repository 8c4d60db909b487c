package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HMAC key accepted at startup.
const MinSecretLength = 32

var (
	ErrMissingSecret      = errors.New("jwt: signing secret is not configured")
	ErrWeakSecret         = fmt.Errorf("jwt: signing secret must be at least %d bytes", MinSecretLength)
	ErrInvalidTTL         = errors.New("jwt: ttl must be positive")
	ErrTokenMalformed     = errors.New("token malformed")
	ErrSignatureInvalid   = errors.New("token signature invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrIssuerMismatch     = errors.New("token issuer mismatch")
	ErrAudienceMismatch   = errors.New("token audience mismatch")
	ErrUnexpectedTokenUse = errors.New("unexpected token type")
)

type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
}

type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

type Option func(*TokenService)

// WithClock replaces the wall clock used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) {
		s.now = now
	}
}

func NewTokenService(cfg Config, opts ...Option) (*TokenService, error) {
	for _, secret := range [][]byte{cfg.AccessSecret, cfg.RefreshSecret} {
		if len(secret) == 0 {
			return nil, ErrMissingSecret
		}
		if len(secret) < MinSecretLength {
			return nil, ErrWeakSecret
		}
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, ErrInvalidTTL
	}

	s := &TokenService{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessExpiry:  cfg.AccessTTL,
		refreshExpiry: cfg.RefreshTTL,
		issuer:        cfg.Issuer,
		audience:      cfg.Audience,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL is the lifetime given to access tokens.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessExpiry
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.refreshExpiry
}

// Issue signs a token of the given type for subject, valid for ttl.
func (s *TokenService) Issue(tokenType domain.TokenType, subject string, ttl time.Duration) (string, *domain.Claims, error) {
	if ttl <= 0 {
		return "", nil, ErrInvalidTTL
	}
	secret, err := s.secretFor(tokenType)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	claims := &domain.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		TokenType: tokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}
	return signed, claims, nil
}

// GenerateTokenPair issues an access and a refresh token for the user.
// The returned claims are those of the access token.
func (s *TokenService) GenerateTokenPair(userID uuid.UUID) (*domain.TokenPair, *domain.Claims, error) {
	access, accessClaims, err := s.Issue(domain.TokenTypeAccess, userID.String(), s.accessExpiry)
	if err != nil {
		return nil, nil, err
	}
	refresh, refreshClaims, err := s.Issue(domain.TokenTypeRefresh, userID.String(), s.refreshExpiry)
	if err != nil {
		return nil, nil, err
	}

	return &domain.TokenPair{
		AccessToken:    access,
		RefreshToken:   refresh,
		ExpiresAt:      accessClaims.ExpiresAt.Time,
		TokenType:      "Bearer",
		RefreshTokenID: refreshClaims.ID,
	}, accessClaims, nil
}

func (s *TokenService) VerifyAccessToken(tokenString string) (*domain.Claims, error) {
	return s.Verify(domain.TokenTypeAccess, tokenString)
}

func (s *TokenService) VerifyRefreshToken(tokenString string) (*domain.Claims, error) {
	return s.Verify(domain.TokenTypeRefresh, tokenString)
}

// Verify checks signature, expiry, issuer and audience with no leeway.
// It has no side effects.
func (s *TokenService) Verify(tokenType domain.TokenType, tokenString string) (*domain.Claims, error) {
	secret, err := s.secretFor(tokenType)
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenString, &domain.Claims{},
		func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := token.Claims.(*domain.Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	if claims.TokenType != tokenType {
		return nil, ErrUnexpectedTokenUse
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}

func (s *TokenService) secretFor(tokenType domain.TokenType) ([]byte, error) {
	switch tokenType {
	case domain.TokenTypeAccess:
		return s.accessSecret, nil
	case domain.TokenTypeRefresh:
		return s.refreshSecret, nil
	default:
		return nil, ErrUnexpectedTokenUse
	}
}

// classify maps library errors onto the codec's taxonomy. Signature
// problems win over claim problems because jwt/v5 verifies them first.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return fmt.Errorf("%w: %v", ErrIssuerMismatch, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrAudienceMismatch, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
}
