package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/andressep95/crm-auth/pkg/jwt"
	"github.com/andressep95/crm-auth/pkg/validator"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Session   SessionConfig
	Audit     AuditConfig
	Auth      AuthConfig
	Blacklist BlacklistConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string        `env:"SERVER_PORT" validate:"required"`
	Environment  string        `env:"ENVIRONMENT" validate:"required"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" validate:"gt=0"`
	CORSOrigins  string        `env:"CORS_ALLOWED_ORIGINS"`
}

type DatabaseConfig struct {
	Host            string        `env:"DB_HOST" validate:"required"`
	Port            string        `env:"DB_PORT" validate:"required"`
	User            string        `env:"DB_USER" validate:"required"`
	Password        string        `env:"DB_PASSWORD"`
	DBName          string        `env:"DB_NAME" validate:"required"`
	SSLMode         string        `env:"DB_SSLMODE"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" validate:"gte=1"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" validate:"gte=0"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"`
	QueryTimeout    time.Duration `env:"DB_QUERY_TIMEOUT" validate:"gt=0"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     string `env:"REDIS_PORT"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" validate:"gte=0"`
}

type JWTConfig struct {
	AccessTokenSecret   string        `env:"ACCESS_TOKEN_SECRET" validate:"required"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" validate:"gt=0"`
	AccessTokenIssuer   string        `env:"ACCESS_TOKEN_ISSUER" validate:"required"`
	AccessTokenAudience string        `env:"ACCESS_TOKEN_AUDIENCE" validate:"required"`
	RefreshTokenSecret  string        `env:"REFRESH_TOKEN_SECRET" validate:"required"`
	RefreshTokenTTL     time.Duration `env:"REFRESH_TOKEN_TTL" validate:"gt=0"`
}

type SessionConfig struct {
	Timeout          time.Duration `env:"SESSION_TIMEOUT_MS" validate:"gt=0"`
	ExtendOnActivity bool          `env:"SESSION_EXTEND_ON_ACTIVITY"`
}

type AuditConfig struct {
	LogTokenRefresh     bool `env:"AUDIT_LOG_TOKEN_REFRESH"`
	LogPermissionDenied bool `env:"AUDIT_LOG_PERMISSION_DENIED"`
	LogAuthSuccess      bool `env:"AUDIT_LOG_AUTH_SUCCESS"`
}

type AuthConfig struct {
	RevocationCheckFirst     bool `env:"AUTH_REVOCATION_CHECK_FIRST"`
	OptionalDowngradeInvalid bool `env:"AUTH_OPTIONAL_DOWNGRADE_INVALID"`
}

type BlacklistConfig struct {
	Backend       string        `env:"BLACKLIST_BACKEND" validate:"oneof=postgres redis"`
	FailOpen      bool          `env:"BLACKLIST_FAIL_OPEN"`
	PurgeInterval time.Duration `env:"BLACKLIST_PURGE_INTERVAL" validate:"gt=0"`
}

type RateLimitConfig struct {
	SkipInDev      bool   `env:"RATE_LIMIT_SKIP_IN_DEV"`
	Backend        string `env:"RATE_LIMIT_BACKEND" validate:"oneof=memory redis"`
	FailOpen       bool   `env:"RATE_LIMIT_FAIL_OPEN"`
	OverrideHeader string `env:"RATE_LIMIT_OVERRIDE_HEADER"`
}

type LogConfig struct {
	Level string `env:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
}

// Load reads the environment, optionally seeded from a .env file, and
// fails when a signing secret is missing or too short.
func Load() (*Config, error) {
	// .env is optional; production injects the environment directly
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Environment:  getEnv("ENVIRONMENT", "development"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			CORSOrigins:  getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "crm"),
			Password:        getEnv("DB_PASSWORD", "crm"),
			DBName:          getEnv("DB_NAME", "crmdb"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:    getDurationEnv("DB_QUERY_TIMEOUT", 3*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessTokenSecret:   os.Getenv("ACCESS_TOKEN_SECRET"),
			AccessTokenTTL:      getSecondsEnv("ACCESS_TOKEN_TTL", 3600*time.Second),
			AccessTokenIssuer:   getEnv("ACCESS_TOKEN_ISSUER", "crm-api"),
			AccessTokenAudience: getEnv("ACCESS_TOKEN_AUDIENCE", "crm-client"),
			RefreshTokenSecret:  os.Getenv("REFRESH_TOKEN_SECRET"),
			RefreshTokenTTL:     getSecondsEnv("REFRESH_TOKEN_TTL", 604800*time.Second),
		},
		Session: SessionConfig{
			Timeout:          getMillisEnv("SESSION_TIMEOUT_MS", time.Hour),
			ExtendOnActivity: getBoolEnv("SESSION_EXTEND_ON_ACTIVITY", false),
		},
		Audit: AuditConfig{
			LogTokenRefresh:     getBoolEnv("AUDIT_LOG_TOKEN_REFRESH", true),
			LogPermissionDenied: getBoolEnv("AUDIT_LOG_PERMISSION_DENIED", true),
			LogAuthSuccess:      getBoolEnv("AUDIT_LOG_AUTH_SUCCESS", false),
		},
		Auth: AuthConfig{
			RevocationCheckFirst:     getBoolEnv("AUTH_REVOCATION_CHECK_FIRST", true),
			OptionalDowngradeInvalid: getBoolEnv("AUTH_OPTIONAL_DOWNGRADE_INVALID", false),
		},
		Blacklist: BlacklistConfig{
			Backend:       strings.ToLower(getEnv("BLACKLIST_BACKEND", "postgres")),
			FailOpen:      getBoolEnv("BLACKLIST_FAIL_OPEN", true),
			PurgeInterval: getDurationEnv("BLACKLIST_PURGE_INTERVAL", time.Hour),
		},
		RateLimit: RateLimitConfig{
			SkipInDev:      getBoolEnv("RATE_LIMIT_SKIP_IN_DEV", false),
			Backend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", "memory")),
			FailOpen:       getBoolEnv("RATE_LIMIT_FAIL_OPEN", true),
			OverrideHeader: getEnv("RATE_LIMIT_OVERRIDE_HEADER", "X-RateLimit-Override"),
		},
		Log: LogConfig{
			Level: strings.ToLower(getEnv("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	v := validator.NewValidator()
	for _, section := range []interface{}{&c.Server, &c.Database, &c.Redis, &c.JWT, &c.Session, &c.Blacklist, &c.RateLimit, &c.Log} {
		if err := v.Validate(section); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	for name, secret := range map[string]string{
		"ACCESS_TOKEN_SECRET":  c.JWT.AccessTokenSecret,
		"REFRESH_TOKEN_SECRET": c.JWT.RefreshTokenSecret,
	} {
		if len(secret) < jwt.MinSecretLength {
			return fmt.Errorf("invalid configuration: %s: %w", name, jwt.ErrWeakSecret)
		}
	}

	if !c.Redis.Enabled() && (c.Blacklist.Backend == "redis" || c.RateLimit.Backend == "redis") {
		return errors.New("invalid configuration: REDIS_HOST is required by the redis backends")
	}
	return nil
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *ServerConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getSecondsEnv reads an integer number of seconds.
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
