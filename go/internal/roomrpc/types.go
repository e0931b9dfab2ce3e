package roomrpc

import (
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

const (
	// ServiceName is the fully-qualified name of the room service.
	ServiceName = "focusroom.room.v1.RoomService"

	DispatchProcedure        = "/" + ServiceName + "/Dispatch"
	GetSnapshotProcedure     = "/" + ServiceName + "/GetSnapshot"
	ListActiveRoomsProcedure = "/" + ServiceName + "/ListActiveRooms"

	// errorCodeKey carries room.ErrorCode in error metadata, since NotFound
	// covers both unknown rooms and unknown participants.
	errorCodeKey = "Focusroom-Error-Code"
)

type DispatchRequest struct {
	RoomID  string       `json:"roomId"`
	Command room.Command `json:"command"`
}

type DispatchResponse struct {
	Snapshot events.RoomSnapshot `json:"snapshot"`
}

type GetSnapshotRequest struct {
	RoomID string `json:"roomId"`
}

type GetSnapshotResponse struct {
	Snapshot events.RoomSnapshot `json:"snapshot"`
}

type ListActiveRoomsRequest struct{}

type ListActiveRoomsResponse struct {
	Rooms []events.RoomSummary `json:"rooms"`
}
