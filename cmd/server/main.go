package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campushq/reportworks/internal"
	"github.com/campushq/reportworks/internal/generator"
	"github.com/campushq/reportworks/internal/handler"
	"github.com/campushq/reportworks/internal/jobs"
	"github.com/campushq/reportworks/internal/metrics"
	"github.com/campushq/reportworks/internal/middleware"
	"github.com/campushq/reportworks/internal/repository"
	"github.com/campushq/reportworks/internal/service"
	"github.com/campushq/reportworks/internal/storage"
	"github.com/campushq/reportworks/internal/worker"
)

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("database ready")

	// Initialize repository
	store := repository.New(db)

	// Initialize storage resolver
	var objects *storage.ObjectStore
	if cfg.ReportStorageMode == "s3" {
		objects, err = storage.NewObjectStore(storage.ObjectConfig{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3BucketName,
			Endpoint:        cfg.S3Endpoint,
		}, logger)
		if err != nil {
			return fmt.Errorf("object storage initialization failed: %w", err)
		}
	}

	encryptionKey := storage.ParseKey(cfg.ReportEncryptionKey)
	if cfg.ReportStorageMode == "inline" && encryptionKey == nil {
		logger.Warn("inline storage configured without a valid encryption key, payloads will be stored unencrypted")
	}

	resolver, err := storage.NewResolver(storage.ResolverConfig{
		Mode:           storage.Mode(cfg.ReportStorageMode),
		InlineMaxBytes: cfg.ReportInlineMaxBytes,
		EncryptionKey:  encryptionKey,
		BaseDir:        cfg.ReportDir,
		Objects:        objects,
	}, logger)
	if err != nil {
		return fmt.Errorf("storage resolver initialization failed: %w", err)
	}

	// Initialize report service
	reports := service.NewReportService(
		store, store, resolver, db,
		generator.Registry(),
		service.ReportServiceConfig{
			ChunkSize:   cfg.ReportChunkSize,
			MaxRows:     cfg.ReportMaxRows,
			DownloadTTL: cfg.ReportTTL,
		},
		logger,
	)

	// Start the report worker pool
	if cfg.WorkerEnabled {
		w, err := worker.New(store, worker.Config{
			Concurrency:     cfg.WorkerConcurrency,
			PollInterval:    cfg.WorkerPollInterval,
			JobTimeout:      cfg.WorkerJobTimeout,
			ShutdownTimeout: cfg.WorkerShutdownTimeout,
			StaleThreshold:  cfg.WorkerStaleThreshold,
		}, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewGenerateReportHandler(reports, logger))
		w.Start(ctx)
		defer w.Stop()
	}

	// Expired-artifact sweep
	if len(cfg.TenantSchemas) > 0 {
		go runSweep(ctx, reports, cfg.TenantSchemas, cfg.SweepInterval, logger)
	} else {
		logger.Warn("TENANT_SCHEMAS not configured, expired-artifact sweep disabled")
	}

	// Initialize middleware
	identityMw := middleware.NewIdentityMiddleware()
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	reportHandler := handler.NewReportHandler(reports, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Report routes
	createStack := middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		identityMw.Handler,
		middleware.RequirePermission(middleware.PermissionReportsCreate),
	)
	viewStack := middleware.Stack(
		loggingMw.Handler,
		metrics.Middleware,
		identityMw.Handler,
		middleware.RequirePermission(middleware.PermissionReportsView),
	)

	mux.Handle("POST /reports/requests", createStack(http.HandlerFunc(reportHandler.Request)))
	mux.Handle("GET /reports/requests/{jobID}/status", viewStack(http.HandlerFunc(reportHandler.Status)))
	mux.Handle("GET /reports/requests/{jobID}/download", viewStack(http.HandlerFunc(reportHandler.Download)))
	mux.Handle("GET /reports/history", viewStack(http.HandlerFunc(reportHandler.History)))
	mux.Handle("GET /reports/types", viewStack(http.HandlerFunc(reportHandler.Types)))

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("graceful shutdown complete")
	return nil
}

// runSweep periodically removes artifacts for jobs past their download TTL.
func runSweep(ctx context.Context, reports *service.ReportService, schemas []string, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := reports.SweepExpired(ctx, schemas); err != nil {
				logger.Error("expired-artifact sweep failed", "error", err)
			}
		}
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
