package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/joestump/slackbridge/api"
	"github.com/joestump/slackbridge/internal/config"
	"github.com/joestump/slackbridge/internal/db"
	"github.com/joestump/slackbridge/internal/dispatch"
)

// EventHandler turns one Slack callback into one HTTP response.
type EventHandler interface {
	Handle(ctx context.Context, req dispatch.Request, settings dispatch.Settings) dispatch.Response
}

// DeliveryHub is the interface the web server uses to subscribe to the live
// delivery stream.
type DeliveryHub interface {
	Subscribe() (<-chan string, func())
}

// ServerOption configures optional Server features.
type ServerOption func(*Server)

// WithSettings overrides how per-request settings are loaded. The default
// serves the settings of the Config passed to New.
func WithSettings(fn func() dispatch.Settings) ServerOption {
	return func(s *Server) { s.settings = fn }
}

// Server is the HTTP server for the Slack bridge.
type Server struct {
	cfg      *config.Config
	events   EventHandler
	settings func() dispatch.Settings
	hub      DeliveryHub
	db       *db.DB
	mux      *http.ServeMux
	server   *http.Server
}

// New creates a new web server. Pass nil for hub if live streaming is not wanted.
func New(cfg *config.Config, events EventHandler, database *db.DB, hub DeliveryHub, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		events:   events,
		settings: cfg.Settings,
		hub:      hub,
		db:       database,
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving HTTP requests. It blocks until the server is shut down.
func (s *Server) Start() error {
	log.Printf("web: listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /slack/events", s.handleSlackEvents)

	s.mux.HandleFunc("GET /api/v1/health", s.handleAPIHealth)
	s.mux.HandleFunc("GET /api/v1/deliveries", s.handleAPIListDeliveries)
	s.mux.HandleFunc("GET /api/v1/deliveries/stats", s.handleAPIDeliveryStats)
	s.mux.HandleFunc("GET /api/v1/deliveries/stream", s.handleDeliveryStream)

	s.mux.HandleFunc("GET /api/openapi.yaml", s.handleOpenAPISpec)
}

func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(api.OpenAPISpec)
}
