package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/focusroom/go/internal/gateway"
	"github.com/rs/zerolog/log"
)

// maxCheckpointBacklog is the unflushed room count above which the store is
// considered to be falling behind.
const maxCheckpointBacklog = 1000

type pinger interface {
	PingContext(ctx context.Context) error
}

type gatewayStatus interface {
	StreamConnected() bool
	GetStats() gateway.ConnectionStats
}

type HealthStatus struct {
	Healthy            bool     `json:"healthy"`
	InstanceID         string   `json:"instance_id"`
	Connections        int      `json:"connections"`
	ActiveRooms        int      `json:"active_rooms"`
	DatabaseConnected  *bool    `json:"database_connected,omitempty"`
	NATSConnected      *bool    `json:"nats_connected,omitempty"`
	PendingCheckpoints int      `json:"pending_checkpoints"`
	PublishBacklog     int      `json:"publish_backlog"`
	Errors             []string `json:"errors"`
}

// HealthChecker inspects the components this process owns. Components that
// are not configured are left out of the report.
type HealthChecker struct {
	instanceID string
	gateway    gatewayStatus
	database   pinger
	stream     bool
	publisher  func() (connected bool, backlog int)
	pending    func() int
}

func newHealthChecker(services *Services, config *Config) *HealthChecker {
	h := &HealthChecker{
		instanceID: services.InstanceID.String(),
		gateway:    services.Gateway,
		stream:     config.Broadcast.Mode == BroadcastJetStream,
	}
	if services.database != nil {
		h.database = services.database
	}
	if pub := services.Publisher; pub != nil {
		h.publisher = func() (bool, int) { return pub.Connected(), pub.Backlog() }
	}
	if cp := services.Checkpointer; cp != nil {
		h.pending = cp.Pending
	}
	return h
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	stats := h.gateway.GetStats()
	status := HealthStatus{
		Healthy:     true,
		InstanceID:  h.instanceID,
		Connections: stats.TotalConnections,
		ActiveRooms: stats.ActiveRooms,
		Errors:      []string{},
	}

	if h.database != nil {
		connected := true
		if err := h.database.PingContext(ctx); err != nil {
			connected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &connected
	}

	if h.stream {
		connected := h.gateway.StreamConnected()
		if h.publisher != nil {
			pubConnected, backlog := h.publisher()
			connected = connected && pubConnected
			status.PublishBacklog = backlog
		}
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		status.NATSConnected = &connected
	}

	if h.pending != nil {
		status.PendingCheckpoints = h.pending()
		if status.PendingCheckpoints > maxCheckpointBacklog {
			status.Errors = append(status.Errors, fmt.Sprintf("high pending checkpoint count: %d", status.PendingCheckpoints))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}
