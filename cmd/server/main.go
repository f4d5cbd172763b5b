package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JonMunkholm/mdo/internal/backend"
	"github.com/JonMunkholm/mdo/internal/config"
	"github.com/JonMunkholm/mdo/internal/export"
	"github.com/JonMunkholm/mdo/internal/logging"
	"github.com/JonMunkholm/mdo/internal/mappings"
	"github.com/JonMunkholm/mdo/internal/postgres"
	"github.com/JonMunkholm/mdo/internal/schema"
	"github.com/JonMunkholm/mdo/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"database", cfg.Database.URL != "",
		"run_max_concurrent", cfg.Run.MaxConcurrent,
		"export_enabled", cfg.Export.Enabled(),
		"rate_limit", cfg.Security.RateLimit,
	)

	registry, err := schema.Load(cfg.Schema.CatalogPath)
	if err != nil {
		slog.Error("failed to load schema catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("templates registered", "count", registry.Len())

	ctx := context.Background()

	deps := server.Deps{Templates: registry}
	var runs backend.Repository
	if cfg.Database.URL != "" {
		pool, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		runs = backend.NewPostgresRepository(pool)
		deps.Mappings = mappings.NewPostgresRepository(pool)
		deps.DB = pool
	} else {
		slog.Warn("DATABASE_URL not set, runs and saved mappings are kept in memory")
		runs = backend.NewMemoryRepository()
		deps.Mappings = mappings.NewMemoryRepository()
	}

	if cfg.Export.Enabled() {
		store, err := export.NewMinioStore(ctx, cfg.Export)
		if err != nil {
			slog.Error("failed to connect to object storage", "error", err)
			os.Exit(1)
		}
		deps.Exporter = export.NewExporter(store, cfg.Export.Prefix)
		slog.Info("export enabled", "endpoint", cfg.Export.Endpoint, "bucket", cfg.Export.Bucket)
	}

	service := backend.NewService(runs, registry, cfg.Run)
	deps.Runs = service

	retention, err := backend.NewRetention(service, cfg.Retention, slog.Default())
	if err != nil {
		slog.Error("failed to schedule retention", "error", err)
		os.Exit(1)
	}
	if retention != nil {
		retention.Start()
	}

	srv := server.NewServer(cfg, deps)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		if retention != nil {
			retention.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Give in-flight runs the rest of the shutdown window, then cancel them.
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
		}
		deadline, _ := shutdownCtx.Deadline()
		if !service.WaitForDrain(time.Until(deadline)) {
			slog.Warn("runs did not complete in time, cancelling")
		}
		service.Close()
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
