// Command server runs the image-generation workflow service: it wires the
// configuration, storage, providers, job runner and HTTP surface together
// and serves until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/phrazzld/easel-api/internal/api"
	"github.com/phrazzld/easel-api/internal/auth"
	"github.com/phrazzld/easel-api/internal/config"
	"github.com/phrazzld/easel-api/internal/events"
	"github.com/phrazzld/easel-api/internal/job"
	"github.com/phrazzld/easel-api/internal/maintenance"
	"github.com/phrazzld/easel-api/internal/pipeline"
	"github.com/phrazzld/easel-api/internal/platform/gemini"
	"github.com/phrazzld/easel-api/internal/platform/logger"
	"github.com/phrazzld/easel-api/internal/platform/renderapi"
	"github.com/phrazzld/easel-api/internal/platform/sqlite"
	"github.com/phrazzld/easel-api/internal/platform/sqlitex"
	"github.com/phrazzld/easel-api/internal/retry"
	"github.com/phrazzld/easel-api/internal/service"
	"github.com/phrazzld/easel-api/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	// A failed migration blocks startup; serving against a half-migrated
	// schema is worse than not serving.
	migrator := maintenance.NewMigrator(db, log)
	if err := migrator.Up(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Baseline stores, and the flagged modular rewrites behind bridges.
	legacyConfigurations := sqlite.NewConfigurationStore(db)
	executions := sqlite.NewExecutionStore(db)
	legacyImages := sqlite.NewImageStore(db)

	dbx := sqlx.NewDb(db, "sqlite")
	configurations := store.NewConfigurationStoreBridge(
		sqlitex.NewConfigurationStore(dbx),
		legacyConfigurations,
		cfg.Features.ModularConfigStore,
	)
	images := store.NewImageStoreBridge(
		sqlitex.NewImageStore(dbx),
		legacyImages,
		cfg.Features.ModularImageStore,
	)

	renderClient := renderapi.NewClient(cfg.Provider.RenderBaseURL, cfg.Provider.RenderAPIKey)

	geminiClient, err := gemini.NewClient(ctx, cfg.Provider.GeminiAPIKey, cfg.Provider.GeminiModel)
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	growth := retry.GrowthLinear
	if cfg.Retry.BackoffGrowth == "exponential" {
		growth = retry.GrowthExponential
	}
	retrier := retry.NewExecutor(retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BackoffBaseMS) * time.Millisecond,
		Growth:      growth,
		Jitter:      cfg.Retry.Jitter,
	})

	emitter := events.NewInMemoryEmitter(log)
	emitter.RegisterHandler(events.NewLogHandler(log))

	runner := job.NewRunner(
		db,
		executions,
		images,
		pipeline.NewProcessor(renderClient, renderClient),
		pipeline.NewFiles(cfg.Pipeline.TempDir, cfg.Pipeline.OutputDir),
		job.Providers{
			Generator: renderClient,
			QC:        geminiClient,
			Metadata:  geminiClient,
		},
		retrier,
		emitter,
		job.Config{
			PollInterval: time.Duration(cfg.Provider.PollIntervalSeconds) * time.Second,
		},
		log,
	)

	// Executions left running by an unclean shutdown are closed out before
	// the single-flight check can trip over them.
	if err := runner.RepairInterrupted(ctx); err != nil {
		return fmt.Errorf("failed to repair interrupted executions: %w", err)
	}

	svc := service.NewJobService(
		runner,
		configurations,
		executions,
		images,
		migrator,
		maintenance.NewBackupManager(db, cfg.Database.BackupDir, log),
		log,
	)

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(svc, tokens, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	// Ask the active run to stop at its next checkpoint, then drain the
	// HTTP server. The runner persists its final state on its own context.
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := runner.Wait(shutdownCtx); err != nil {
		log.Warn("job did not stop before shutdown deadline", "error", err)
	}

	log.Info("server stopped")
	return nil
}
