// Package api provides the REST API for the runner service.
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BV-BRC/tool-runner/internal/config"
	"github.com/BV-BRC/tool-runner/internal/events"
	"github.com/BV-BRC/tool-runner/internal/journal"
	"github.com/BV-BRC/tool-runner/internal/runner"
)

// Server is the HTTP server for the runner API.
type Server struct {
	config  *config.Config
	router  chi.Router
	handler *Handler
}

// NewServer creates a new API server. The journal store and event
// publisher may be nil when those integrations are disabled.
func NewServer(cfg *config.Config, run *runner.Runner, store journal.Store, publisher *events.Publisher) *Server {
	s := &Server{config: cfg}
	s.handler = NewHandler(run, store, publisher)
	s.router = s.setupRoutes()
	return s
}

// setupRoutes configures the router with all API routes.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.WriteTimeout))

	// Health check
	r.Get("/health", s.handler.HealthCheck)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/invocations", s.handler.SubmitInvocation)
		r.Get("/invocations/{id}", s.handler.GetInvocation)
	})

	return r
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the listen address from configuration.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
}
