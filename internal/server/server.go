// Package server exposes the conversation service over HTTP: the chat
// endpoint, read-only ledger tables, engine info, metrics and a live trace
// event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agilbank/concierge/internal/config"
	"github.com/agilbank/concierge/internal/observability"
	"github.com/agilbank/concierge/pkg/ledger"
	"github.com/agilbank/concierge/pkg/orchestrator"
	"github.com/agilbank/concierge/pkg/provider"
	"github.com/agilbank/concierge/pkg/sessions"
	"github.com/agilbank/concierge/pkg/turnqueue"
)

// Server is the HTTP front of the conversation service.
type Server struct {
	cfg      config.ServerConfig
	engines  config.EnginesConfig
	registry *sessions.Registry
	orch     *orchestrator.Orchestrator
	queue    *turnqueue.Queue
	factory  *provider.Factory
	store    *ledger.Store

	server      *http.Server
	upgrader    websocket.Upgrader
	broadcaster *Broadcaster
	limiter     *RateLimiter
	logger      zerolog.Logger

	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// Config holds server dependencies.
type Config struct {
	Server   config.ServerConfig
	Engines  config.EnginesConfig
	Registry *sessions.Registry
	Orch     *orchestrator.Orchestrator
	Queue    *turnqueue.Queue
	Factory  *provider.Factory
	Store    *ledger.Store

	// Broadcaster carries trace events to stream clients. Shared with the
	// orchestrator's event sink; a fresh one is created when nil.
	Broadcaster *Broadcaster

	Logger zerolog.Logger
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.Orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("turn queue is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = NewBroadcaster(cfg.Logger)
	}

	s := &Server{
		cfg:         cfg.Server,
		engines:     cfg.Engines,
		registry:    cfg.Registry,
		orch:        cfg.Orch,
		queue:       cfg.Queue,
		factory:     cfg.Factory,
		store:       cfg.Store,
		broadcaster: broadcaster,
		limiter:     NewRateLimiter(cfg.Server.RateLimitPerMinute),
		logger:      cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	return s, nil
}

// Broadcaster returns the trace event broadcaster, which implements the
// orchestrator's event sink.
func (s *Server) Broadcaster() *Broadcaster {
	return s.broadcaster
}

// Start begins serving in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.withCORS(s.handleChat))
	mux.HandleFunc("/api/providers", s.withCORS(s.handleProviders))
	mux.HandleFunc("/api/tables/", s.withCORS(s.handleTable))
	mux.HandleFunc("/api/health", s.withCORS(s.handleHealth))
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: mux,
	}

	s.logger.Info().
		Str("host", s.cfg.Host).
		Int("port", s.cfg.Port).
		Msg("Starting HTTP server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down HTTP server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	s.broadcaster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

func (s *Server) shuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.isShuttingDown
}

// withCORS applies the allowed-origin policy around a handler.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.cfg.AllowedOrigins) > 0 && s.cfg.AllowedOrigins[0] != "*" {
			origin = s.cfg.AllowedOrigins[0]
			for _, allowed := range s.cfg.AllowedOrigins {
				if allowed == r.Header.Get("Origin") {
					origin = allowed
					break
				}
			}
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// handleWebSocket upgrades a connection onto the trace event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.shuttingDown() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	s.broadcaster.Attach(conn)
}
