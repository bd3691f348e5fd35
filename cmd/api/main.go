// cmd/api/main.go
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"libraripro/internal/app"
	"libraripro/internal/config"
	"libraripro/internal/httpapi"
	"libraripro/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

// run returns instead of exiting so that the telemetry flush and the store
// close always happen.
func run() error {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to set up telemetry", "error", err)
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open library", "error", err)
		return err
	}
	defer a.Close()

	if violations, err := a.Circulation.Verify(ctx); err == nil && len(violations) > 0 {
		logger.Warn("ledger is inconsistent at startup; run libraryctl verify", "violations", len(violations))
	}

	srv := httpapi.New(cfg, httpapi.Services{
		Catalog:     a.Catalog,
		Membership:  a.Membership,
		Circulation: a.Circulation,
	}, logger)

	if err := srv.Serve(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	return nil
}
