// Package api is the HTTP surface: execution dispatch, process inventory,
// mapping invalidation, the metrics snapshot, and a server-sent-events feed
// of runtime lifecycle notifications. All routes except /healthz require a
// bearer token; each route additionally demands a scope.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prochub/prochub/internal/authz"
	"github.com/prochub/prochub/internal/dispatch"
	"github.com/prochub/prochub/internal/events"
	"github.com/prochub/prochub/internal/metrics"
	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/registry"
)

// Executor runs one dispatch under an explicit session. *dispatch.Dispatcher
// satisfies it.
type Executor interface {
	ExecuteAs(ctx context.Context, session authz.Session, call dispatch.Call) (dispatch.Record, error)
}

// Orchestrator exposes the runtime operations the API surfaces.
type Orchestrator interface {
	Ready() bool
	Uptime() time.Duration
	LoadPlugin(ctx context.Context, desc plugin.Descriptor) (plugin.Plugin, error)
	UnloadPlugin(id, version string) error
}

// ProcessInventory is the read side of the registry.
type ProcessInventory interface {
	Snapshot() []registry.ProcessInfo
	Info(id string) (registry.ProcessInfo, error)
	Size() int
	TotalVersionCount() int
}

// MappingInvalidator drops cached routing decisions for one tenant.
type MappingInvalidator interface {
	Invalidate(tenant string) int
}

// MetricsSource yields the current counters for GET /metrics.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
}

// Config holds API server configuration.
type Config struct {
	Listen string
	Tokens []TokenConfig
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	dispatcher Executor
	runtime    Orchestrator
	inventory  ProcessInventory
	mappings   MappingInvalidator
	metrics    MetricsSource
	hub        *events.Hub
	logger     *slog.Logger
	server     *http.Server
}

// New creates an API server. The hub may be nil to disable /events.
func New(cfg Config, dispatcher Executor, rt Orchestrator, inventory ProcessInventory, mappings MappingInvalidator, m MetricsSource, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:     cfg,
		dispatcher: dispatcher,
		runtime:    rt,
		inventory:  inventory,
		mappings:   mappings,
		metrics:    m,
		hub:        hub,
		logger:     logger,
	}
}

// Start runs the HTTP server until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // long enough for slow dispatches and SSE writes
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes builds the chi router. Exported so tests can drive it through
// httptest without binding a listener.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes("execute")).Post("/execute/{tenant}/{operation}", s.handleExecute)
		r.With(s.requireScopes("processes:ro")).Get("/processes", s.handleListProcesses)
		r.With(s.requireScopes("processes:ro")).Get("/processes/{processID}", s.handleGetProcess)
		r.With(s.requireScopes("processes:ro")).Get("/metrics", s.handleMetrics)
		r.With(s.requireScopes("processes:rw")).Post("/processes/load", s.handleLoadProcess)
		r.With(s.requireScopes("processes:rw")).Delete("/processes/{processID}", s.handleUnloadProcess)
		r.With(s.requireScopes("processes:rw")).Delete("/mappings/{tenant}", s.handleInvalidateMappings)
		r.With(s.requireScopes("events:ro")).Get("/events", s.handleEvents)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
