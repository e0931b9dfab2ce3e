package events

import (
	"time"
)

// Snapshot and payload types shared between the room engine, the publisher and the gateway

// Cue names the transition that produced a snapshot
type Cue string

const (
	CueStarted   Cue = "started"
	CuePaused    Cue = "paused"
	CueResumed   Cue = "resumed"
	CueReset     Cue = "reset"
	CueStopped   Cue = "stopped"
	CueCompleted Cue = "completed"
	CueIdle      Cue = "idle"
	CueTick      Cue = "tick"
	CueAttached  Cue = "attached"
	CueDetached  Cue = "detached"
	CueRenamed   Cue = "renamed"
	CueRestored  Cue = "restored"
)

// WorkSession is one completed work interval
type WorkSession struct {
	Duration    int       `json:"duration"`
	CompletedAt time.Time `json:"completedAt"`
}

// RoomStats holds the aggregate statistics of a room
type RoomStats struct {
	UserCount     int `json:"userCount"`
	TotalWorkTime int `json:"totalWorkTime"`
}

// Participant is an attached user of a room
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RoomSnapshot is the full, versioned state of one room. Durations are whole seconds.
// Versions are ordered by (Epoch, Seq); Epoch identifies the engine process
// that produced the snapshot and grows across restarts.
type RoomSnapshot struct {
	RoomID         string        `json:"roomId"`
	Epoch          int64         `json:"epoch"`
	Seq            uint64        `json:"seq"`
	Mode           string        `json:"mode"`
	TimerType      string        `json:"timerType"`
	TimerDuration  int           `json:"timerDuration"`
	TimerRemaining int           `json:"timerRemaining"`
	WorkSessions   []WorkSession `json:"workSessions"`
	Stats          RoomStats     `json:"stats"`
	Participants   []Participant `json:"participants"`
	Cue            Cue           `json:"cue"`
	ServerTime     time.Time     `json:"serverTime"`
}

// Newer reports whether s supersedes other for the same room
func (s RoomSnapshot) Newer(other RoomSnapshot) bool {
	if s.Epoch != other.Epoch {
		return s.Epoch > other.Epoch
	}
	return s.Seq > other.Seq
}

// RoomSummary is a short description of a live room
type RoomSummary struct {
	RoomID         string `json:"room_id"`
	Mode           string `json:"mode"`
	UserCount      int    `json:"user_count"`
	TimerRemaining int    `json:"timer_remaining_sec"`
	Seq            uint64 `json:"seq"`
}
