package room

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Mode is the state-machine state of a room.
type Mode string

const (
	ModeIdle        Mode = "idle"
	ModeWorking     Mode = "working"
	ModePaused      Mode = "paused"
	ModeBreak       Mode = "break"
	ModeBreakPaused Mode = "break-paused"
	ModeStopped     Mode = "stopped"
)

// CountingDown reports whether the tick loop runs in this mode.
func (m Mode) CountingDown() bool {
	switch m {
	case ModeWorking, ModeBreak:
		return true
	case ModeIdle, ModePaused, ModeBreakPaused, ModeStopped:
		return false
	default:
		return false
	}
}

// HasCountdown reports whether timerRemaining is meaningful in this mode.
func (m Mode) HasCountdown() bool {
	switch m {
	case ModeWorking, ModePaused, ModeBreak, ModeBreakPaused:
		return true
	case ModeIdle, ModeStopped:
		return false
	default:
		return false
	}
}

// TimerType is the kind of countdown that is or was running.
type TimerType string

const (
	TimerNone  TimerType = "none"
	TimerWork  TimerType = "work"
	TimerBreak TimerType = "break"
)

// CommandType enumerates the command surface accepted by the engine.
type CommandType string

const (
	CommandStartWork  CommandType = "startWork"
	CommandStartBreak CommandType = "startBreak"
	CommandPause      CommandType = "pause"
	CommandResume     CommandType = "resume"
	CommandReset      CommandType = "reset"
	CommandStop       CommandType = "stop"
	CommandGoToIdle   CommandType = "goToIdle"
	CommandUpdateName CommandType = "updateName"
	CommandAttach     CommandType = "attach"
	CommandDetach     CommandType = "detach"
)

// Command is one request addressed to a room by a participant.
type Command struct {
	Type            CommandType `json:"type"`
	ParticipantID   string      `json:"participantId"`
	DurationMinutes int         `json:"durationMinutes,omitempty"`
	Name            string      `json:"name,omitempty"`
}

// Config holds engine limits and timing.
type Config struct {
	MaxWorkMinutes  int           `yaml:"max_work_minutes"`
	MaxBreakMinutes int           `yaml:"max_break_minutes"`
	MaxNameLength   int           `yaml:"max_name_length"`
	GracePeriod     time.Duration `yaml:"grace_period"`
}

// DefaultConfig returns the limits used by the web client.
func DefaultConfig() Config {
	return Config{
		MaxWorkMinutes:  55,
		MaxBreakMinutes: 30,
		MaxNameLength:   20,
		GracePeriod:     30 * time.Second,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the real clock, typically with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}
