package roomrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/focusroom/go/internal/room"
)

// toConnectError maps engine errors onto Connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}

	var code connect.Code
	switch {
	case errors.Is(err, room.ErrInvalidCommand):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, room.ErrInvalidArgument):
		code = connect.CodeInvalidArgument
	case errors.Is(err, room.ErrUnknownRoom), errors.Is(err, room.ErrUnknownParticipant):
		code = connect.CodeNotFound
	case errors.Is(err, room.ErrEngineClosed):
		code = connect.CodeUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	default:
		code = connect.CodeInternal
	}

	cerr := connect.NewError(code, err)
	cerr.Meta().Set(errorCodeKey, room.ErrorCode(err))
	return cerr
}

// fromConnectError turns a Connect error back into the engine sentinel it was built from.
func fromConnectError(err error) error {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return err
	}

	var sentinel error
	switch cerr.Meta().Get(errorCodeKey) {
	case "invalid_command":
		sentinel = room.ErrInvalidCommand
	case "invalid_argument":
		sentinel = room.ErrInvalidArgument
	case "unknown_room":
		sentinel = room.ErrUnknownRoom
	case "unknown_participant":
		sentinel = room.ErrUnknownParticipant
	case "unavailable":
		sentinel = room.ErrEngineClosed
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, strings.TrimPrefix(cerr.Message(), sentinel.Error()+": "))
}
