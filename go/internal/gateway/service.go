package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/mcdev12/quizduel/go/internal/round"
	"github.com/rs/zerolog/log"
)

// Service is the session gateway: live websocket connections backed by
// per-seat round coordinators, plus read-only REST state.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// Config holds configuration for the session gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	// PublicURL prefixes invite links, e.g. https://quizduel.example.
	PublicURL string
}

// DefaultConfig returns default configuration for the session gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		PublicURL:        "http://localhost:8080",
	}
}

// NewService creates a new session gateway service
func NewService(config Config, sessions SessionProvider, host *round.Host) *Service {
	connectionManager := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, sessions, host),
		stateHandler:      NewStateHandler(sessions, config.PublicURL),
	}
}

// Start runs the broadcast loop until ctx is cancelled
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting session gateway service")
	s.connectionManager.Start(ctx)
	log.Info().Msg("session gateway service stopped")
}

// RegisterRoutes registers the WebSocket and state routes
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/ws/session", s.wsHandler.HandleSessionConnection)
	r.Get("/ws/stats", s.wsHandler.HandleConnectionStats)
	s.stateHandler.RegisterStateRoutes(r)
	log.Info().Msg("session gateway routes registered")
}

// Routes returns a router serving only the gateway routes
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
