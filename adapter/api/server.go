// Package api exposes the scheduling engine over HTTP. Every response is a
// JSON envelope {ok, data|error, meta}.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/meridian/internal/app"
	"github.com/felixgeelhaar/meridian/pkg/observability"
)

// Server is the HTTP API server.
type Server struct {
	mux    *http.ServeMux
	server *http.Server
	logger *slog.Logger
	health *observability.HealthRegistry

	availability *AvailabilityHandler
	policies     *PolicyHandler
	constraints  *ConstraintHandler
	scheduling   *SchedulingHandler
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "0.0.0.0:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Handlers groups the route handlers.
type Handlers struct {
	Availability *AvailabilityHandler
	Policies     *PolicyHandler
	Constraints  *ConstraintHandler
	Scheduling   *SchedulingHandler
	Health       *observability.HealthRegistry
}

// HandlersFromContainer builds every handler from the application
// container.
func HandlersFromContainer(c *app.Container) Handlers {
	return Handlers{
		Availability: NewAvailabilityHandler(c.GetAvailabilityHandler, c.Logger),
		Policies: NewPolicyHandler(PolicyHandlerConfig{
			GetMatrix: c.GetMatrixHandler,
			Resolve:   c.ResolveHandler,
			SetEdges:  c.SetEdgesHandler,
			Logger:    c.Logger,
		}),
		Constraints: NewConstraintHandler(ConstraintHandlerConfig{
			Create:  c.CreateConstraintHandler,
			Update:  c.UpdateConstraintHandler,
			Delete:  c.DeleteConstraintHandler,
			Queries: c.ConstraintQueries,
			Logger:  c.Logger,
		}),
		Scheduling: NewSchedulingHandler(SchedulingHandlerConfig{
			Propose:    c.ProposeHandler,
			Hold:       c.HoldHandler,
			ExtendHold: c.ExtendHoldHandler,
			Commit:     c.CommitHandler,
			Cancel:     c.CancelHandler,
			Queries:    c.SessionQueries,
			Logger:     c.Logger,
		}),
		Health: c.Health,
	}
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig, handlers Handlers, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if handlers.Health == nil {
		handlers.Health = observability.NewHealthRegistry()
	}

	s := &Server{
		mux:          http.NewServeMux(),
		logger:       logger,
		health:       handlers.Health,
		availability: handlers.Availability,
		policies:     handlers.Policies,
		constraints:  handlers.Constraints,
		scheduling:   handlers.Scheduling,
	}
	s.registerRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// registerRoutes sets up the API routes.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)

	auth := func(h http.HandlerFunc) http.HandlerFunc { return requireUser(s.logger, h) }

	s.mux.HandleFunc("GET /availability", auth(s.availability.Get))

	s.mux.HandleFunc("GET /policies", auth(s.policies.GetMatrix))
	s.mux.HandleFunc("PUT /policies/{id}/edges", auth(s.policies.SetEdges))
	s.mux.HandleFunc("GET /policies/{id}/resolve", auth(s.policies.Resolve))

	s.mux.HandleFunc("GET /constraints", auth(s.constraints.List))
	s.mux.HandleFunc("POST /constraints", auth(s.constraints.Create))
	s.mux.HandleFunc("GET /constraints/{id}", auth(s.constraints.Get))
	s.mux.HandleFunc("PUT /constraints/{id}", auth(s.constraints.Update))
	s.mux.HandleFunc("DELETE /constraints/{id}", auth(s.constraints.Delete))

	s.mux.HandleFunc("POST /scheduling/sessions", auth(s.scheduling.Propose))
	s.mux.HandleFunc("GET /scheduling/sessions", auth(s.scheduling.List))
	s.mux.HandleFunc("GET /scheduling/sessions/{id}", auth(s.scheduling.Get))
	s.mux.HandleFunc("DELETE /scheduling/sessions/{id}", auth(s.scheduling.Cancel))
	s.mux.HandleFunc("GET /scheduling/sessions/{id}/candidates", auth(s.scheduling.Candidates))
	s.mux.HandleFunc("POST /scheduling/sessions/{id}/hold", auth(s.scheduling.Hold))
	s.mux.HandleFunc("POST /scheduling/sessions/{id}/commit", auth(s.scheduling.Commit))
	s.mux.HandleFunc("POST /scheduling/sessions/{id}/extend-hold", auth(s.scheduling.ExtendHold))
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return withRequestContext(s.logger, withRecover(s.logger, s.mux))
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, http.StatusOK, map[string]string{
		"status": string(observability.HealthStatusHealthy),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady runs the registered dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	health := s.health.Check(r.Context())
	if health.Status == observability.HealthStatusUnhealthy {
		writeJSON(w, http.StatusServiceUnavailable, Envelope{
			Data:  health,
			Error: &ErrorBody{Code: "unavailable", Message: "dependency check failed"},
			Meta:  metaOf(r),
		})
		return
	}
	writeOK(w, r, http.StatusOK, health)
}

// Start starts the API server.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}
