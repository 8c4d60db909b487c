package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andressep95/crm-auth/internal/app"
	"github.com/andressep95/crm-auth/internal/config"
	logctx "github.com/andressep95/crm-auth/pkg/log"
)

func main() {
	// Load configuration; missing signing secrets stop the process here
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logctx.New(cfg.Log.Level, cfg.Server.Environment)
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		logger.Error("failed to release resources", "error", err)
	}
	if runErr != nil {
		logger.Error("server stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("server_stopped")
}
