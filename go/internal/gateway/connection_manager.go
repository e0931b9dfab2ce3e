package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// ConnectionManager manages WebSocket connections per room. It is the
// room.Emitter of the engine (or of the JetStream consumer) and keeps the
// latest snapshot of every room so new connections start from current state.
type ConnectionManager struct {
	// Connection pools organized by room ID
	roomConnections map[string]map[*Connection]bool
	// Open connections per identity per room
	identities map[string]map[string]int
	// Latest snapshot per room
	latest map[string]events.RoomSnapshot
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID      string
	UserID  string
	RoomID  string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	handler     ConnectionHandler
	ConnectedAt time.Time
}

// ConnectionHandler reacts to client traffic on a room connection
type ConnectionHandler interface {
	// HandleMessage is called from the connection's read loop for every message.
	HandleMessage(c *Connection, message []byte)
	// HandleLastLeave is called once the last connection of an identity left a room.
	HandleLastLeave(roomID, userID string)
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration              `yaml:"write_timeout"`
	ReadTimeout     time.Duration              `yaml:"read_timeout"`
	PingInterval    time.Duration              `yaml:"ping_interval"`
	MaxMessageSize  int64                      `yaml:"max_message_size"`
	ReadBufferSize  int                        `yaml:"read_buffer_size"`
	WriteBufferSize int                        `yaml:"write_buffer_size"`
	SendBufferSize  int                        `yaml:"send_buffer_size"`
	BroadcastBuffer int                        `yaml:"broadcast_buffer"`
	ReleaseWait     time.Duration              `yaml:"release_wait"`
	CheckOrigin     func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage is one unit of work for the broadcast loop
type BroadcastMessage struct {
	RoomID   string
	Snapshot *events.RoomSnapshot
	Released bool
}

// ConnectionStats describes the active connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
	CachedSnapshots  int            `json:"cached_snapshots"`
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		BroadcastBuffer: 1024,
		ReleaseWait:     time.Second,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	def := DefaultConnectionConfig()
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = def.WriteTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = def.ReadTimeout
	}
	if config.PingInterval <= 0 {
		config.PingInterval = def.PingInterval
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = def.MaxMessageSize
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = def.SendBufferSize
	}
	if config.BroadcastBuffer <= 0 {
		config.BroadcastBuffer = def.BroadcastBuffer
	}
	if config.ReleaseWait <= 0 {
		config.ReleaseWait = def.ReleaseWait
	}

	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		identities:      make(map[string]map[string]int),
		latest:          make(map[string]events.RoomSnapshot),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, config.BroadcastBuffer),
	}
}

// Start processes broadcast messages until ctx is cancelled. Snapshots are
// handled by this single goroutine so every connection sees them in order.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// Emit queues a snapshot for broadcast without blocking the room worker.
func (cm *ConnectionManager) Emit(snapshot events.RoomSnapshot) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: snapshot.RoomID, Snapshot: &snapshot}:
	default:
		log.Error().
			Str("room_id", snapshot.RoomID).
			Uint64("seq", snapshot.Seq).
			Msg("broadcast channel full, dropping snapshot")
	}
}

// Release queues removal of a room's cached snapshot. It waits up to
// ReleaseWait for queue space; a lost release would hide the next room with
// the same id behind the old sequence numbers.
func (cm *ConnectionManager) Release(roomID string) {
	timer := time.NewTimer(cm.config.ReleaseWait)
	defer timer.Stop()

	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Released: true}:
	case <-timer.C:
		log.Error().Str("room_id", roomID).Msg("broadcast channel full, releasing room out of order")
		cm.dropSnapshot(roomID)
	}
}

// LatestSnapshot returns the cached snapshot of a room.
func (cm *ConnectionManager) LatestSnapshot(roomID string) (events.RoomSnapshot, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	s, ok := cm.latest[roomID]
	return s, ok
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and registers it
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, roomID, userID string, handler ConnectionHandler) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		RoomID:      roomID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		handler:     handler,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Str("room_id", roomID).
		Msg("WebSocket connection established")

	return connection, nil
}

// registerConnection adds a connection and queues the cached snapshot for it.
// Both happen under the lock the broadcast loop takes, so the connection sees
// either the cached snapshot or the broadcast that replaces it, in order.
func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.roomConnections[conn.RoomID] == nil {
		cm.roomConnections[conn.RoomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[conn.RoomID][conn] = true

	if cm.identities[conn.RoomID] == nil {
		cm.identities[conn.RoomID] = make(map[string]int)
	}
	cm.identities[conn.RoomID][conn.UserID]++

	if snapshot, ok := cm.latest[conn.RoomID]; ok {
		if data, err := marshalSnapshot(snapshot); err == nil {
			conn.Send <- data
		} else {
			log.Error().Err(err).Str("room_id", conn.RoomID).Msg("failed to marshal cached snapshot")
		}
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", conn.RoomID).
		Int("total_connections", len(cm.roomConnections[conn.RoomID])).
		Msg("connection registered")
}

// unregisterConnection removes a connection. It is safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.roomConnections[conn.RoomID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.roomConnections, conn.RoomID)
	}

	lastLeave := false
	if ids := cm.identities[conn.RoomID]; ids != nil {
		ids[conn.UserID]--
		if ids[conn.UserID] <= 0 {
			delete(ids, conn.UserID)
			lastLeave = true
		}
		if len(ids) == 0 {
			delete(cm.identities, conn.RoomID)
		}
	}
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("room_id", conn.RoomID).
		Bool("last_for_identity", lastLeave).
		Msg("connection unregistered")

	if lastLeave && conn.handler != nil {
		go conn.handler.HandleLastLeave(conn.RoomID, conn.UserID)
	}
}

// identityConnections returns the number of open connections of an identity in a room.
func (cm *ConnectionManager) identityConnections(roomID, userID string) int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.identities[roomID][userID]
}

// sendTo queues data for one connection if it is still registered.
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.roomConnections[conn.RoomID][conn] {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		log.Warn().Str("connection_id", conn.ID).Msg("connection send buffer full, dropping message")
		return false
	}
}

// handleBroadcast processes a broadcast message
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	if message.Released {
		cm.dropSnapshot(message.RoomID)
		return
	}

	snapshot := *message.Snapshot
	data, err := marshalSnapshot(snapshot)
	if err != nil {
		log.Error().Err(err).Str("room_id", message.RoomID).Msg("failed to marshal snapshot for broadcast")
		return
	}

	cm.mu.Lock()
	if cached, ok := cm.latest[message.RoomID]; ok && !snapshot.Newer(cached) {
		cm.mu.Unlock()
		log.Debug().
			Str("room_id", message.RoomID).
			Uint64("seq", snapshot.Seq).
			Uint64("cached_seq", cached.Seq).
			Msg("dropping stale snapshot")
		return
	}
	cm.latest[message.RoomID] = snapshot

	var slow []*Connection
	delivered := 0
	for conn := range cm.roomConnections[message.RoomID] {
		select {
		case conn.Send <- data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.Unlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("room_id", message.RoomID).
		Uint64("seq", snapshot.Seq).
		Str("cue", string(snapshot.Cue)).
		Int("connections", delivered).
		Msg("snapshot broadcasted")
}

func (cm *ConnectionManager) dropSnapshot(roomID string) {
	cm.mu.Lock()
	delete(cm.latest, roomID)
	cm.mu.Unlock()
	log.Debug().Str("room_id", roomID).Msg("room released, cached snapshot dropped")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{
		ActiveRooms:     len(cm.roomConnections),
		RoomConnections: make(map[string]int, len(cm.roomConnections)),
		CachedSnapshots: len(cm.latest),
	}
	for roomID, connections := range cm.roomConnections {
		stats.TotalConnections += len(connections)
		stats.RoomConnections[roomID] = len(connections)
	}
	return stats
}

func marshalSnapshot(snapshot events.RoomSnapshot) ([]byte, error) {
	event, err := newRoomEvent(snapshot.RoomID, EventTypeRoomSnapshot, snapshot)
	if err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		if c.handler != nil {
			c.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// Close ends the connection after queued messages are written.
func (c *Connection) Close() {
	c.Manager.unregisterConnection(c)
}
