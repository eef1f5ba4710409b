// Package main is the entry point for the entitlement API server.
//
// Startup order: configuration, logger, migrations, connection pool, plan
// catalog seeding, engine and handler wiring, then the HTTP listener.
// Any failure before the listener starts aborts the process (fail fast).
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"

	"lexquota"
	"lexquota/internal/api/handlers"
	"lexquota/internal/config"
	"lexquota/internal/core"
	"lexquota/internal/db"
	"lexquota/internal/entitlement"
	"lexquota/internal/plans"
	"lexquota/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("entitlement service starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Database.RunMigrations {
		if err := db.Migrate(cfg.Database.URL, lexquota.Migrations); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	runner := db.NewRunner(pool)

	// Seeding is idempotent and must succeed: the Trial plan is a hard
	// runtime dependency of trial assignment.
	if err := plans.Seed(ctx, runner, logger); err != nil {
		pool.Close()
		return fmt.Errorf("seeding plan catalog: %w", err)
	}

	metrics, err := newMetrics(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("initializing metrics: %w", err)
	}

	// A typed nil *Collector must not reach the interface field, or the
	// engine's nil check stops protecting it.
	var decisionMetrics entitlement.DecisionMetrics
	if metrics != nil {
		decisionMetrics = metrics
	}
	engine := entitlement.NewEngine(runner, logger, decisionMetrics)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Pool = pool
	if metrics != nil {
		srv.Metrics = metrics
	}
	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("database", pool.Ping),
	}

	entitlementHandler := handlers.NewEntitlementHandler(engine, srv.Validator, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		entitlementHandler.RegisterRoutes(r)
	})

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newMetrics builds the CloudWatch collector, or returns nil when metrics
// are disabled so the chassis and engine skip recording entirely.
func newMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*telemetry.Collector, error) {
	if !cfg.Observability.EnableMetrics {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	client := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	return telemetry.NewCollector(client, cfg.Observability.MetricNamespace, logger), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful
// shutdown on SIGINT/SIGTERM.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON slog.Logger for the given level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
