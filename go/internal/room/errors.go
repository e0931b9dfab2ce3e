package room

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand means the guard failed for the room's current mode.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrInvalidArgument means the command was malformed; it is rejected before any guard check.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnknownRoom means no live room exists for the id.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrUnknownParticipant means the identity is not attached to the room.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrEngineClosed is returned after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// ErrorCode returns the wire code for an engine error, or "internal" for anything else.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCommand):
		return "invalid_command"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrUnknownRoom):
		return "unknown_room"
	case errors.Is(err, ErrUnknownParticipant):
		return "unknown_participant"
	case errors.Is(err, ErrEngineClosed):
		return "unavailable"
	default:
		return "internal"
	}
}

func invalidCommand(cmd CommandType, mode Mode) error {
	return fmt.Errorf("%w: %s not allowed while %s", ErrInvalidCommand, cmd, mode)
}

func invalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

func unknownParticipant(roomID, participantID string) error {
	return fmt.Errorf("%w: %q is not attached to room %s", ErrUnknownParticipant, participantID, roomID)
}
