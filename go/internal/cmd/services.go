package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/dbconfig"
	"github.com/mcdev12/focusroom/go/internal/gateway"
	"github.com/mcdev12/focusroom/go/internal/publisher"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/roomrpc"
	"github.com/mcdev12/focusroom/go/internal/store"
	storedb "github.com/mcdev12/focusroom/go/internal/store/db"
)

// Services holds everything the binary runs. Engine, RoomRPC, Publisher and
// Checkpointer are nil when the process does not own them.
type Services struct {
	InstanceID   uuid.UUID
	Engine       *room.Engine
	Gateway      *gateway.Service
	RoomRPC      *roomrpc.Handler
	Publisher    *publisher.JetStreamPublisher
	Checkpointer *store.Checkpointer

	database *sql.DB
	wg       sync.WaitGroup
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Connection manager → emitters → engine → gateway / RPC
	s := &Services{InstanceID: uuid.New()}
	cm := gateway.NewConnectionManager(config.Connections)

	gatewayConfig := gateway.Config{
		ConnectionConfig: config.Connections,
		CommandTimeout:   config.Broadcast.CommandTimeout,
		ConsumeJetStream: config.Broadcast.Mode == BroadcastJetStream,
		JetStreamConfig:  config.Consumer,
	}

	if config.GatewayOnly() {
		client := roomrpc.NewClient(&http.Client{Timeout: config.Broadcast.CommandTimeout}, config.EngineURL)
		gw, err := gateway.NewService(gatewayConfig, cm, client)
		if err != nil {
			return nil, err
		}
		s.Gateway = gw
		log.Info().Str("engine_url", config.EngineURL).Msg("running as gateway for a remote engine")
		return s, nil
	}

	var emitters []room.Emitter
	switch config.Broadcast.Mode {
	case BroadcastJetStream:
		pub, err := publisher.NewJetStreamPublisher(config.Publisher)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.Publisher = pub
		emitters = append(emitters, pub)
	default:
		emitters = append(emitters, cm)
	}

	var repo *store.Repository
	if config.Checkpoints.Enabled {
		database, err := dbconfig.NewConfigFromEnv().Open(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.database = database

		if err := store.Migrate(ctx, database); err != nil {
			s.Close()
			return nil, err
		}
		repo = store.NewRepository(storedb.New(database), s.InstanceID)
		s.Checkpointer = store.NewCheckpointer(repo, clockwork.NewRealClock(), config.Checkpoints.FlushInterval)
		emitters = append(emitters, s.Checkpointer)
	}

	s.Engine = room.NewEngine(config.Room, publisher.NewFanout(emitters...))
	s.RoomRPC = roomrpc.NewHandler(s.Engine)

	if repo != nil {
		restoreRooms(ctx, repo, s.Engine, config.Checkpoints.RestoreWindow)
	}

	gw, err := gateway.NewService(gatewayConfig, cm, s.Engine)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Gateway = gw

	return s, nil
}

// restoreRooms recreates rooms checkpointed within window and purges older rows.
// Failures are logged; the engine still starts empty.
func restoreRooms(ctx context.Context, repo *store.Repository, engine *room.Engine, window time.Duration) {
	since := time.Now().Add(-window)

	purged, err := repo.PurgeBefore(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("failed to purge stale checkpoints")
	}

	snapshots, err := repo.LoadSince(ctx, since)
	if err != nil {
		log.Error().Err(err).Msg("failed to load checkpoints")
		return
	}

	restored := engine.Restore(snapshots)
	log.Info().
		Int64("purged", purged).
		Int("loaded", len(snapshots)).
		Int("restored", restored).
		Msg("restored rooms from checkpoints")
}

// Run starts the background workers. They stop when ctx is cancelled.
func (s *Services) Run(ctx context.Context) {
	s.goRun(func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	})
	if s.Publisher != nil {
		s.goRun(func() { s.Publisher.Run(ctx) })
	}
	if s.Checkpointer != nil {
		s.goRun(func() { s.Checkpointer.Run(ctx) })
	}
}

func (s *Services) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Wait blocks until every worker started by Run has returned.
func (s *Services) Wait() {
	s.wg.Wait()
}

// Close stops the engine and releases connections. Rooms are not released,
// so their checkpoints survive for the next start.
func (s *Services) Close() {
	if s.Engine != nil {
		s.Engine.Close()
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close publisher")
		}
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
