package core

import (
	"github.com/go-chi/chi/v5"
)

// redactedHeaders lists header names whose values are masked in request logs
// so the shared service token never reaches log storage.
var redactedHeaders = []string{
	"Authorization",
	"X-Service-Token",
	"Cookie",
}

// MountRoutes registers the global middleware chain, the /v1 route group,
// and the health endpoint.
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Route("/v1", s.mountV1)

	s.router.Get("/health", s.HandleHealth)
}

// registerGlobalMiddleware applies middleware in strict order:
//
//  1. Recoverer      - catches panics; outermost so it sees all failures.
//  2. ContextTimeout - soft deadline below the infrastructure hard timeout.
//  3. RequestID      - correlation ID for tracing across services.
//  4. RequestLogger  - structured logging with redacted headers.
//  5. Metrics        - request latency and count recording.
//  6. ServiceAuth    - verifies the shared token, resolves the caller.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.ServiceAuthMiddleware)
}

// mountV1 registers all v1 endpoints through the registrars populated by the
// application entry point. The indirection avoids an import cycle between
// core and the handlers package.
func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}
