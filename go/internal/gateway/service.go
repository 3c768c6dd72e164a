package gateway

import (
	"context"
	"net/http"

	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Service is the round gateway: WebSocket connections plus the event source that feeds them.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the round gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  events.JetStreamConfig
}

// DefaultConfig returns default configuration for the round gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  events.DefaultJetStreamConfig(),
	}
}

// NewService creates a new round gateway. With a nil js the gateway is fed only through
// Publisher(), i.e. by the app in the same process.
func NewService(config Config, js jetstream.JetStream, snapshots SnapshotProvider, identify IdentifyFunc) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, snapshots, identify),
	}
	if js != nil {
		s.eventConsumer = NewEventConsumer(cm, js, config.JetStreamConfig)
	}
	return s
}

// Publisher returns the in-process event sink.
func (s *Service) Publisher() events.Publisher {
	return s.connectionManager
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting round gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		return s.eventConsumer.Start(ctx)
	}
	<-ctx.Done()
	log.Info().Msg("round gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("round gateway routes registered")
}

// Stats returns statistics about the gateway service
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
