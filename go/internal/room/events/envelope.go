package events

import (
	"encoding/json"
	"time"
)

// Envelope types carried on the snapshot stream
const (
	EnvelopeRoomSnapshot = "RoomSnapshot"
	EnvelopeRoomReleased = "RoomReleased"
)

// Envelope wraps a payload published to the snapshot stream
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	RoomID    string          `json:"roomId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RoomReleasedPayload marks the end of a room's lifetime
type RoomReleasedPayload struct {
	RoomID     string    `json:"roomId"`
	ReleasedAt time.Time `json:"releasedAt"`
}
