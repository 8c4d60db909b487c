// Package app owns the process lifecycle: connections, wiring, the HTTP
// server and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/andressep95/crm-auth/internal/config"
	"github.com/andressep95/crm-auth/internal/domain"
	"github.com/andressep95/crm-auth/internal/handler"
	"github.com/andressep95/crm-auth/internal/handler/middleware"
	"github.com/andressep95/crm-auth/internal/metrics"
	"github.com/andressep95/crm-auth/internal/repository"
	"github.com/andressep95/crm-auth/internal/repository/postgres"
	"github.com/andressep95/crm-auth/internal/service"
	"github.com/andressep95/crm-auth/pkg/blacklist"
	"github.com/andressep95/crm-auth/pkg/jwt"
	logctx "github.com/andressep95/crm-auth/pkg/log"
	"github.com/andressep95/crm-auth/pkg/ratelimit"
	"github.com/andressep95/crm-auth/pkg/response"
	"github.com/andressep95/crm-auth/pkg/validator"
)

// Dependencies are the external connections the App is built on. Redis
// may be nil when no redis backend is configured.
type Dependencies struct {
	DB    *sqlx.DB
	Redis redis.UniversalClient
}

type App struct {
	cfg         *config.Config
	logger      *slog.Logger
	deps        Dependencies
	server      *fiber.App
	revocations *service.RevocationService

	stopJanitor context.CancelFunc
	janitorWG   sync.WaitGroup
	closeOnce   sync.Once
}

// New opens the database and redis connections and wires the App.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := initDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database_connected", "host", cfg.Database.Host, "name", cfg.Database.DBName)

	var rdb redis.UniversalClient
	if cfg.Redis.Enabled() {
		rdb, err = initRedis(cfg)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.Info("redis_connected", "addr", cfg.Redis.Addr())
	}

	a, err := Build(cfg, logger, Dependencies{DB: db, Redis: rdb})
	if err != nil {
		_ = db.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}
	return a, nil
}

// Build wires the App on already opened connections.
func Build(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*App, error) {
	if deps.DB == nil {
		return nil, errors.New("app: database connection is required")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	tokens, err := jwt.NewTokenService(jwt.Config{
		AccessSecret:  []byte(cfg.JWT.AccessTokenSecret),
		RefreshSecret: []byte(cfg.JWT.RefreshTokenSecret),
		AccessTTL:     cfg.JWT.AccessTokenTTL,
		RefreshTTL:    cfg.JWT.RefreshTokenTTL,
		Issuer:        cfg.JWT.AccessTokenIssuer,
		Audience:      cfg.JWT.AccessTokenAudience,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	// Repositories
	userRepo := postgres.NewUserRepository(deps.DB, cfg.Database.QueryTimeout)
	sessionRepo := postgres.NewSessionRepository(deps.DB, cfg.Database.QueryTimeout)

	var blacklistRepo repository.BlacklistRepository
	switch cfg.Blacklist.Backend {
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("app: redis blacklist backend needs a redis connection")
		}
		blacklistRepo = blacklist.NewTokenBlacklist(deps.Redis)
	default:
		blacklistRepo = postgres.NewBlacklistRepository(deps.DB, cfg.Database.QueryTimeout)
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		if deps.Redis == nil {
			return nil, errors.New("app: redis rate limit backend needs a redis connection")
		}
		limiter = ratelimit.NewRedisLimiter(deps.Redis, "ratelimit")
	default:
		limiter = ratelimit.NewMemoryLimiter()
	}

	// Services
	revocations := service.NewRevocationService(blacklistRepo, cfg.Blacklist.FailOpen, m, nil)
	authn := service.NewAuthenticator(tokens, revocations, userRepo, sessionRepo, service.AuthenticatorConfig{
		SessionTimeout:           cfg.Session.Timeout,
		ExtendOnActivity:         cfg.Session.ExtendOnActivity,
		RevocationFirst:          cfg.Auth.RevocationCheckFirst,
		DowngradeInvalidOptional: cfg.Auth.OptionalDowngradeInvalid,
	}, nil)
	authService := service.NewAuthService(userRepo, sessionRepo, tokens, revocations, service.AuthServiceConfig{
		SessionTimeout:       cfg.Session.Timeout,
		AuditLogTokenRefresh: cfg.Audit.LogTokenRefresh,
	}, nil)

	// Middlewares
	authz := middleware.NewAuthorization(cfg.Audit.LogPermissionDenied, m)
	rateLimiter := middleware.NewRateLimiter(limiter, authn, middleware.RateLimitOptions{
		Skip:           cfg.RateLimit.SkipInDev && cfg.Server.IsDevelopment(),
		FailOpen:       cfg.RateLimit.FailOpen,
		OverrideHeader: cfg.RateLimit.OverrideHeader,
		Metrics:        m,
	})
	authOpts := middleware.AuthOptions{
		AuditSuccess: cfg.Audit.LogAuthSuccess,
		Metrics:      m,
	}

	// Handlers
	validate := validator.NewValidator()
	checks := map[string]handler.Check{
		"database": deps.DB.PingContext,
	}
	if deps.Redis != nil {
		checks["cache"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	server := fiber.New(fiber.Config{
		AppName:               "CRM Auth",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
	})

	// Global middlewares
	server.Use(middleware.RecoveryMiddleware())
	server.Use(middleware.RequestID())
	server.Use(middleware.LoggerMiddleware(logger))
	server.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigins))

	server.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	handler.SetupRoutes(
		server,
		handler.NewAuthHandler(authService, validate),
		handler.NewSessionHandler(authService),
		handler.NewAdminHandler(authService, revocations, authz),
		handler.NewHealthHandler(checks),
		handler.Middlewares{
			Auth:         middleware.AuthMiddleware(authn, authOpts),
			OptionalAuth: middleware.OptionalAuthMiddleware(authn, authOpts),
			RateLimiter:  rateLimiter,
			Authz:        authz,
		},
	)

	return &App{
		cfg:         cfg,
		logger:      logger,
		deps:        deps,
		server:      server,
		revocations: revocations,
	}, nil
}

// Server exposes the HTTP app, mainly for tests.
func (a *App) Server() *fiber.App {
	return a.server
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.startJanitor(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Server.Port
		a.logger.Info("server_starting", "addr", addr, "environment", a.cfg.Server.Environment)
		errCh <- a.server.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Close stops background jobs and releases connections. It is safe to
// call more than once.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.stopJanitor != nil {
			a.stopJanitor()
		}
		a.janitorWG.Wait()

		if a.deps.Redis != nil {
			if err := a.deps.Redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		if err := a.deps.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	})
	return errors.Join(errs...)
}

// startJanitor purges expired blacklist entries on a fixed interval.
func (a *App) startJanitor(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	a.stopJanitor = cancel

	interval := a.cfg.Blacklist.PurgeInterval
	logger := a.logger.With("job", "blacklist_janitor")

	a.janitorWG.Add(1)
	go func() {
		defer a.janitorWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := a.revocations.Purge(logctx.Into(ctx, logger))
				if err != nil {
					logger.Warn("blacklist_purge_failed", "error", err)
					continue
				}
				logger.Debug("blacklist_purged", "removed", n)
			}
		}
	}()
}

// errorHandler renders errors that escaped the handlers. Nothing about
// the cause reaches the client.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Fail(c, fe.Code, fmt.Sprintf("HTTP_%d", fe.Code), fe.Message)
	}
	logctx.From(c.UserContext()).Error("unhandled_error", "method", c.Method(), "path", c.Path(), "error", err)
	return response.AuthError(c, domain.Internal(err))
}

// initDB connects to PostgreSQL, retrying while the database starts up.
func initDB(cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	dsn := cfg.Database.DSN()

	var db *sqlx.DB
	var err error

	maxRetries := 5
	retryInterval := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}

		logger.Warn("database_connect_failed", "attempt", i+1, "max_attempts", maxRetries, "error", err)
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// initRedis initializes the Redis client and verifies the connection.
func initRedis(cfg *config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
