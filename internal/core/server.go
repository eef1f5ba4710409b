// Package core provides the API chassis for the entitlement service.
// It creates a chi router and enforces cross-cutting concerns (panic
// recovery, request correlation, logging, metrics, service authentication)
// before requests reach the entitlement handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lexquota/internal/config"
)

// MetricsCollector records API telemetry. Implementations publish request
// latency and count to CloudWatch or equivalent backends.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// Server bundles the dependencies of the HTTP API, allowing injection during
// testing and distinct wiring per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are executed by the /health endpoint. Populated by the
	// application entry point.
	HealthProbes []HealthProbe

	// V1RouteRegistrars register domain handler routes under /v1. Populated
	// by the entry point to avoid an import cycle with the handlers package.
	V1RouteRegistrars []func(chi.Router)

	// Pool is closed on shutdown when set (the pgx connection pool).
	Pool interface{ Close() }

	router *chi.Mux
}

// NewServer validates critical dependencies and prepares the router.
// The caller mounts routes via MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources: the database pool is closed after
// in-flight requests have drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if s.Pool != nil {
		s.Pool.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
