package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// SnapshotSink receives snapshots and releases read from the stream
type SnapshotSink interface {
	Emit(snapshot events.RoomSnapshot)
	Release(roomID string)
}

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL               string        `yaml:"url"`
	StreamName        string        `yaml:"stream_name"`
	ConsumerPrefix    string        `yaml:"consumer_prefix"`
	SubjectFilter     string        `yaml:"subject_filter"`
	AckWait           time.Duration `yaml:"ack_wait"`
	MaxAckPending     int           `yaml:"max_ack_pending"`
	InactiveThreshold time.Duration `yaml:"inactive_threshold"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectWait     time.Duration `yaml:"reconnect_wait"`
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:               nats.DefaultURL,
		StreamName:        "ROOM_SNAPSHOTS",
		ConsumerPrefix:    "room-gateway",
		SubjectFilter:     "room.snapshots.>",
		AckWait:           30 * time.Second,
		MaxAckPending:     1000,
		InactiveThreshold: 5 * time.Minute,
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
	}
}

// EventConsumer consumes room snapshots from JetStream and hands them to the
// connection manager. Every gateway instance needs every snapshot, so each
// one owns a consumer named after its instance id.
type EventConsumer struct {
	sink     SnapshotSink
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConsumerConfig
	name     string
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(sink SnapshotSink, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		sink:   sink,
		nc:     nc,
		js:     js,
		config: config,
		name:   fmt.Sprintf("%s-%s", config.ConsumerPrefix, uuid.NewString()[:8]),
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// ensureConsumer creates or gets the JetStream consumer
func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:              ec.name,
		Description:       "Room gateway WebSocket consumer",
		FilterSubject:     ec.config.SubjectFilter,
		DeliverPolicy:     jetstream.DeliverLastPerSubjectPolicy, // Latest state of every room first
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		InactiveThreshold: ec.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.name)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.name).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.name).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start begins consuming events from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.name).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg.Data()); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				// Malformed envelopes are terminated, not redelivered
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to terminate message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

// processMessage decodes one envelope and forwards it to the sink
func (ec *EventConsumer) processMessage(data []byte) error {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("room_id", envelope.RoomID).
		Str("event_type", envelope.EventType).
		Msg("processing JetStream event")

	switch envelope.EventType {
	case events.EnvelopeRoomSnapshot:
		var snapshot events.RoomSnapshot
		if err := json.Unmarshal(envelope.Payload, &snapshot); err != nil {
			return fmt.Errorf("unmarshal snapshot: %w", err)
		}
		if snapshot.RoomID != envelope.RoomID {
			return fmt.Errorf("snapshot for room %q in envelope for %q", snapshot.RoomID, envelope.RoomID)
		}
		ec.sink.Emit(snapshot)

	case events.EnvelopeRoomReleased:
		ec.sink.Release(envelope.RoomID)

	default:
		return fmt.Errorf("unknown event type: %s", envelope.EventType)
	}
	return nil
}

// Connected reports whether the NATS connection is currently up.
func (ec *EventConsumer) Connected() bool {
	return ec.nc != nil && ec.nc.IsConnected()
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}

	return nil
}
