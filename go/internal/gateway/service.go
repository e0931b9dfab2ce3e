package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Backend is the engine surface the gateway needs. It is served in-process by
// *room.Engine or remotely through *roomrpc.Client.
type Backend interface {
	Dispatcher
	StateProvider
}

// Service is the room gateway: WebSocket connections, command routing and state endpoints
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// Config holds configuration for the room gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	CommandTimeout   time.Duration
	// ConsumeJetStream feeds the connection manager from the snapshot stream
	// instead of directly from an in-process engine.
	ConsumeJetStream bool
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the room gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		CommandTimeout:   5 * time.Second,
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new room gateway service around an existing connection manager
func NewService(config Config, cm *ConnectionManager, backend Backend) (*Service, error) {
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, backend, config.CommandTimeout),
		stateHandler:      NewStateHandler(backend),
	}

	if config.ConsumeJetStream {
		consumer, err := NewEventConsumer(cm, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	log.Info().Msg("room gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// StreamConnected reports the JetStream link state. A gateway fed in-process
// is always connected.
func (s *Service) StreamConnected() bool {
	if s.eventConsumer == nil {
		return true
	}
	return s.eventConsumer.Connected()
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
