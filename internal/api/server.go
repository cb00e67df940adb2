package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fixengine/internal/config"
)

// Server runs the HTTP/WebSocket API for the operator dashboard
type Server struct {
	cfg      config.DashboardConfig
	provider SnapshotProvider
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(
	cfg config.DashboardConfig,
	provider SnapshotProvider,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, cfg, hub, logger)

	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	// Serve static files (operator dashboard web UI)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the API server and hub
func (s *Server) Start() error {
	// Start WebSocket hub
	go s.hub.Run()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Broadcast pushes an engine event to every connected operator. The
// engine's OnExecution and OnVenueStatus callbacks, as wired in main, call
// this directly rather than the server pulling from a channel, since the
// engine has no natural single event stream to range over.
func (s *Server) Broadcast(evt EngineEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	s.hub.BroadcastEvent(evt)
}
