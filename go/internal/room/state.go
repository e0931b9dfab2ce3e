package room

import (
	"time"

	"github.com/mcdev12/focusroom/go/internal/room/events"
)

// State is the authoritative state of one room. It is owned by exactly one
// worker goroutine and is never shared.
type State struct {
	Mode           Mode
	TimerType      TimerType
	TimerDuration  int
	TimerRemaining int

	workSessions  []events.WorkSession
	totalWorkTime int
	participants  *participants
	seq           uint64
}

func newState() *State {
	return &State{
		Mode:         ModeIdle,
		TimerType:    TimerNone,
		participants: newParticipants(),
	}
}

// stateFromSnapshot rebuilds a room from a checkpoint. Participants are not
// restored; they re-attach when their clients reconnect.
func stateFromSnapshot(snap events.RoomSnapshot) *State {
	s := newState()
	s.Mode = Mode(snap.Mode)
	s.TimerType = TimerType(snap.TimerType)
	s.TimerDuration = snap.TimerDuration
	s.TimerRemaining = snap.TimerRemaining
	s.seq = snap.Seq
	for _, ws := range snap.WorkSessions {
		s.recordSession(ws.Duration, ws.CompletedAt)
	}
	return s
}

// apply runs one timer command through the guard table. A rejected command
// leaves the state untouched.
func (s *State) apply(cmd Command, now time.Time) (events.Cue, error) {
	switch cmd.Type {
	case CommandStartWork:
		if s.Mode != ModeIdle {
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		s.startCountdown(TimerWork, ModeWorking, cmd.DurationMinutes)
		return events.CueStarted, nil

	case CommandStartBreak:
		if s.Mode != ModeIdle {
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		s.startCountdown(TimerBreak, ModeBreak, cmd.DurationMinutes)
		return events.CueStarted, nil

	case CommandPause:
		switch s.Mode {
		case ModeWorking:
			s.Mode = ModePaused
		case ModeBreak:
			s.Mode = ModeBreakPaused
		default:
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		return events.CuePaused, nil

	case CommandResume:
		switch s.Mode {
		case ModePaused:
			s.Mode = ModeWorking
		case ModeBreakPaused:
			s.Mode = ModeBreak
		default:
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		return events.CueResumed, nil

	case CommandReset:
		switch s.Mode {
		case ModeWorking, ModePaused:
			s.Mode = ModeWorking
		case ModeBreak, ModeBreakPaused:
			s.Mode = ModeBreak
		default:
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		s.TimerRemaining = s.TimerDuration
		return events.CueReset, nil

	case CommandStop:
		switch s.Mode {
		case ModeWorking, ModePaused:
		default:
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		if elapsed := s.TimerDuration - s.TimerRemaining; elapsed > 0 {
			s.recordSession(elapsed, now)
		}
		s.TimerRemaining = 0
		s.Mode = ModeStopped
		return events.CueStopped, nil

	case CommandGoToIdle:
		switch s.Mode {
		case ModeBreak, ModeBreakPaused, ModeStopped:
		default:
			return "", invalidCommand(cmd.Type, s.Mode)
		}
		s.Mode = ModeIdle
		s.TimerType = TimerNone
		s.TimerDuration = 0
		s.TimerRemaining = 0
		return events.CueIdle, nil

	default:
		return "", invalidArgument("unknown command %q", cmd.Type)
	}
}

// tick advances the countdown by one second. It reports false when the room
// is not counting down, which means the tick was stale.
func (s *State) tick(now time.Time) (events.Cue, bool) {
	if !s.Mode.CountingDown() || s.TimerRemaining <= 0 {
		return "", false
	}
	s.TimerRemaining--
	if s.TimerRemaining > 0 {
		return events.CueTick, true
	}

	if s.TimerType == TimerWork {
		s.recordSession(s.TimerDuration, now)
	}
	s.Mode = ModeStopped
	return events.CueCompleted, true
}

func (s *State) startCountdown(t TimerType, mode Mode, minutes int) {
	s.TimerType = t
	s.TimerDuration = minutes * 60
	s.TimerRemaining = s.TimerDuration
	s.Mode = mode
}

func (s *State) recordSession(duration int, completedAt time.Time) {
	s.workSessions = append(s.workSessions, events.WorkSession{
		Duration:    duration,
		CompletedAt: completedAt.UTC(),
	})
	s.totalWorkTime += duration
}

// TotalWorkTime is the sum of all recorded session durations in seconds.
func (s *State) TotalWorkTime() int {
	return s.totalWorkTime
}

// WorkSessions returns a copy of the recorded sessions.
func (s *State) WorkSessions() []events.WorkSession {
	out := make([]events.WorkSession, len(s.workSessions))
	copy(out, s.workSessions)
	return out
}

// snapshot builds an immutable copy of the state. It does not advance seq.
func (s *State) snapshot(roomID string, cue events.Cue, now time.Time) events.RoomSnapshot {
	return events.RoomSnapshot{
		RoomID:         roomID,
		Seq:            s.seq,
		Mode:           string(s.Mode),
		TimerType:      string(s.TimerType),
		TimerDuration:  s.TimerDuration,
		TimerRemaining: s.TimerRemaining,
		WorkSessions:   s.WorkSessions(),
		Stats: events.RoomStats{
			UserCount:     s.participants.count(),
			TotalWorkTime: s.totalWorkTime,
		},
		Participants: s.participants.list(),
		Cue:          cue,
		ServerTime:   now.UTC(),
	}
}
