package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// Dispatcher applies commands to rooms. *room.Engine and *roomrpc.Client both satisfy it.
type Dispatcher interface {
	Dispatch(ctx context.Context, roomID string, cmd room.Command) (events.RoomSnapshot, error)
}

// WebSocketHandler handles WebSocket upgrade requests for room connections
// and routes client commands to the engine.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	dispatcher        Dispatcher
	commandTimeout    time.Duration

	// locks orders attach against the detach of the same identity in a room
	locksMu sync.Mutex
	locks   map[identityKey]*identityLock
}

type identityKey struct {
	roomID string
	userID string
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, dispatcher Dispatcher, commandTimeout time.Duration) *WebSocketHandler {
	if commandTimeout <= 0 {
		commandTimeout = 5 * time.Second
	}
	return &WebSocketHandler{
		connectionManager: cm,
		dispatcher:        dispatcher,
		commandTimeout:    commandTimeout,
		locks:             make(map[identityKey]*identityLock),
	}
}

// lockIdentity serializes lifecycle commands of one identity in one room and
// returns the matching unlock.
func (h *WebSocketHandler) lockIdentity(roomID, userID string) func() {
	key := identityKey{roomID: roomID, userID: userID}

	h.locksMu.Lock()
	l, ok := h.locks[key]
	if !ok {
		l = &identityLock{}
		h.locks[key] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.locks, key)
		}
		h.locksMu.Unlock()
	}
}

// HandleRoomConnection handles GET /ws/room?room_id=...&user_id=...&name=...
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}

	// Identity is whatever the client presents; a missing one gets a fresh id
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = uuid.NewString()
	}
	name := r.URL.Query().Get("name")

	conn, err := h.connectionManager.UpgradeConnection(w, r, roomID, userID, h)
	if err != nil {
		// The upgrader has already written an HTTP error response
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	unlock := h.lockIdentity(roomID, userID)
	_, err = h.dispatch(roomID, room.Command{Type: room.CommandAttach, ParticipantID: userID, Name: name})
	unlock()
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", conn.ID).
			Str("room_id", roomID).
			Str("user_id", userID).
			Msg("attach rejected, closing connection")
		h.sendResult(conn, CommandResultPayload{
			Command:   string(room.CommandAttach),
			Applied:   false,
			ErrorCode: room.ErrorCode(err),
			Error:     err.Error(),
		})
		conn.Close()
	}
}

// HandleMessage decodes a client command, dispatches it and answers with a CommandResult
func (h *WebSocketHandler) HandleMessage(c *Connection, message []byte) {
	var msg ClientCommand
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("malformed client message")
		h.sendResult(c, CommandResultPayload{Applied: false, ErrorCode: "invalid_argument", Error: "malformed message"})
		return
	}

	result := CommandResultPayload{RequestID: msg.RequestID, Command: msg.Type}
	cmd, err := msg.toCommand(c.UserID)
	if err == nil {
		var snapshot events.RoomSnapshot
		snapshot, err = h.dispatch(c.RoomID, cmd)
		result.Seq = snapshot.Seq
	}
	if err != nil {
		result.ErrorCode = room.ErrorCode(err)
		result.Error = err.Error()
	} else {
		result.Applied = true
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("room_id", c.RoomID).
		Str("participant_id", c.UserID).
		Str("command", msg.Type).
		Bool("applied", result.Applied).
		Msg("client command handled")

	h.sendResult(c, result)
}

// HandleLastLeave detaches an identity once its last connection to a room is gone
func (h *WebSocketHandler) HandleLastLeave(roomID, userID string) {
	defer h.lockIdentity(roomID, userID)()

	// The identity reconnected while this call was queued
	if h.connectionManager.identityConnections(roomID, userID) > 0 {
		return
	}

	if _, err := h.dispatch(roomID, room.Command{Type: room.CommandDetach, ParticipantID: userID}); err != nil {
		log.Debug().
			Err(err).
			Str("room_id", roomID).
			Str("participant_id", userID).
			Msg("detach not applied")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.GetConnectionStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}

func (h *WebSocketHandler) dispatch(roomID string, cmd room.Command) (events.RoomSnapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.commandTimeout)
	defer cancel()
	return h.dispatcher.Dispatch(ctx, roomID, cmd)
}

func (h *WebSocketHandler) sendResult(c *Connection, result CommandResultPayload) {
	event, err := newRoomEvent(c.RoomID, EventTypeCommandResult, result)
	if err != nil {
		log.Error().Err(err).Msg("failed to build command result")
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal command result")
		return
	}
	h.connectionManager.sendTo(c, data)
}
