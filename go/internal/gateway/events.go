package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focusroom/go/internal/room"
)

// RoomEvent is the envelope for every server-to-client WebSocket message
type RoomEvent struct {
	ID        string          `json:"id"`        // Event UUID
	RoomID    string          `json:"room_id"`   // Room the event belongs to
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of room event
type EventType string

const (
	EventTypeRoomSnapshot  EventType = "RoomSnapshot"
	EventTypeCommandResult EventType = "CommandResult"
)

// ClientCommand is a message sent by a client over its room connection.
// Attach and detach are driven by the connection itself and are not accepted here.
type ClientCommand struct {
	RequestID       string `json:"requestId"`
	Type            string `json:"type"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Name            string `json:"name,omitempty"`
}

// CommandResultPayload answers one ClientCommand
type CommandResultPayload struct {
	RequestID string `json:"requestId"`
	Command   string `json:"command"`
	Applied   bool   `json:"applied"`
	Seq       uint64 `json:"seq,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

func newRoomEvent(roomID string, eventType EventType, payload any) (*RoomEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &RoomEvent{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// toCommand maps a client message to an engine command for the given identity
func (c ClientCommand) toCommand(participantID string) (room.Command, error) {
	cmd := room.Command{
		Type:            room.CommandType(c.Type),
		ParticipantID:   participantID,
		DurationMinutes: c.DurationMinutes,
		Name:            c.Name,
	}
	switch cmd.Type {
	case room.CommandAttach, room.CommandDetach:
		return cmd, fmt.Errorf("%w: %s is managed by the connection", room.ErrInvalidArgument, c.Type)
	}
	return cmd, nil
}
