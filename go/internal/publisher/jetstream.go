package publisher

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

type JetStreamConfig struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	QueueSize       int           `yaml:"queue_size"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "ROOM_SNAPSHOTS",
		SubjectPrefix:   "room.snapshots",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       4096,
		PublishTimeout:  5 * time.Second,
	}
}

// JetStreamPublisher publishes room snapshots to one subject per room. The
// stream keeps only the last message per subject, so a gateway that starts
// consuming sees the current state of every live room first.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
	queue  chan outboundMsg
}

type outboundMsg struct {
	eventID   string
	eventType string
	msg       *nats.Msg
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
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

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg, queue: make(chan outboundMsg, cfg.QueueSize)}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return p, nil
}

func (p *JetStreamPublisher) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              p.config.StreamName,
		Description:       "Latest snapshot of every live focus room",
		Subjects:          []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 1,
		MaxAge:            p.config.MaxAge,
		Storage:           jetstream.FileStorage,
		Replicas:          p.config.Replicas,
		Duplicates:        p.config.DuplicateWindow,
	}
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := p.streamConfig()

	stream, err := p.js.Stream(ctx, p.config.StreamName)
	if err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = p.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", p.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Emit queues a snapshot for publishing without blocking the room worker.
func (p *JetStreamPublisher) Emit(snapshot events.RoomSnapshot) {
	msg, err := newSnapshotMsg(p.config.SubjectPrefix, snapshot)
	if err != nil {
		log.Error().Err(err).Str("room_id", snapshot.RoomID).Msg("failed to build snapshot message")
		return
	}
	p.enqueue(msg)
}

// Release publishes a release marker that replaces the room's last snapshot.
func (p *JetStreamPublisher) Release(roomID string) {
	msg, err := newReleasedMsg(p.config.SubjectPrefix, roomID, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build release message")
		return
	}
	p.enqueue(msg)
}

func (p *JetStreamPublisher) enqueue(out outboundMsg) {
	select {
	case p.queue <- out:
	default:
		log.Error().
			Str("subject", out.msg.Subject).
			Str("event_type", out.eventType).
			Msg("publish queue full, dropping message")
	}
}

// Run publishes queued messages until ctx is cancelled.
func (p *JetStreamPublisher) Run(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("JetStream publisher started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("JetStream publisher shutting down")
			return
		case out := <-p.queue:
			if err := p.publish(ctx, out); err != nil {
				log.Error().
					Err(err).
					Str("subject", out.msg.Subject).
					Str("event_id", out.eventID).
					Msg("failed to publish to JetStream")
			}
		}
	}
}

func (p *JetStreamPublisher) publish(ctx context.Context, out outboundMsg) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	ack, err := p.js.PublishMsg(ctx, out.msg,
		jetstream.WithMsgID(out.eventID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", out.msg.Subject).
		Str("event_id", out.eventID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")
	return nil
}

// Connected reports whether the NATS connection is currently up.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Backlog is the number of messages waiting to be published.
func (p *JetStreamPublisher) Backlog() int {
	return len(p.queue)
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func newSnapshotMsg(prefix string, snapshot events.RoomSnapshot) (outboundMsg, error) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return outboundMsg{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	return newEnvelopeMsg(prefix, events.EnvelopeRoomSnapshot, snapshot.RoomID, snapshot.ServerTime, payload)
}

func newReleasedMsg(prefix, roomID string, at time.Time) (outboundMsg, error) {
	payload, err := json.Marshal(events.RoomReleasedPayload{RoomID: roomID, ReleasedAt: at})
	if err != nil {
		return outboundMsg{}, fmt.Errorf("marshal release: %w", err)
	}
	return newEnvelopeMsg(prefix, events.EnvelopeRoomReleased, roomID, at, payload)
}

func newEnvelopeMsg(prefix, eventType, roomID string, at time.Time, payload json.RawMessage) (outboundMsg, error) {
	env := events.Envelope{
		EventID:   uuid.NewString(),
		EventType: eventType,
		RoomID:    roomID,
		Timestamp: at,
		Payload:   payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return outboundMsg{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return outboundMsg{
		eventID:   env.EventID,
		eventType: eventType,
		msg: &nats.Msg{
			Subject: fmt.Sprintf("%s.%s", prefix, roomID),
			Data:    data,
			Header: nats.Header{
				"Event-Type": []string{eventType},
				"Room-ID":    []string{roomID},
				"Event-ID":   []string{env.EventID},
			},
		},
	}, nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgsPerSubject == b.MaxMsgsPerSubject &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
