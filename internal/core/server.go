// Package core provides the HTTP chassis for the scorepipe API.
// It creates a chi router compatible with standard HTTP serving and enforces
// cross-cutting concerns -- panic recovery, request correlation, logging,
// security headers -- before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scorepipe/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count metrics.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a group of domain routes on the API router.
// The indirection avoids import cycles between core and handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates the dependencies of the score API, allowing injection
// during testing and distinct configuration per environment.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// HealthProbes are checked by the /health endpoint. Optional.
	HealthProbes []HealthProbe

	// APIRouteRegistrars are mounted under /api by MountRoutes.
	APIRouteRegistrars []RouteRegistrar

	router        *chi.Mux
	shutdownHooks []func(ctx context.Context) error
}

// NewServer initializes the server chassis. It performs a fail-fast check on
// critical dependencies. The caller mounts routes via MountRoutes after
// registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// MountRoutes registers the global middleware chain, the /api route group,
// and the health endpoint.
//
// Middleware ordering:
//  1. Recoverer       - outermost so all panics are caught.
//  2. ContextTimeout  - soft deadline below the platform hard timeout.
//  3. RequestID       - correlation ID generation/propagation.
//  4. SecurityHeaders - present on every response regardless of outcome.
//  5. RequestLogger   - structured logging with redacted headers.
//  6. Metrics         - request latency and count recording.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	s.router.Route("/api", func(r chi.Router) {
		for _, registrar := range s.APIRouteRegistrars {
			registrar(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Shutdown performs a graceful termination of server resources. Resources
// registered via OnShutdown are closed in registration order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, fn := range s.shutdownHooks {
		if err := fn(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			return fmt.Errorf("shutdown hook: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}

// OnShutdown registers a hook to run during graceful shutdown (e.g., waiting
// for in-flight event publishes to drain).
func (s *Server) OnShutdown(fn func(ctx context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, fn)
}
