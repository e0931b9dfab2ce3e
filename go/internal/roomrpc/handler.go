package roomrpc

import (
	"context"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
	"github.com/rs/zerolog/log"
)

// Engine is the part of *room.Engine the RPC service exposes.
type Engine interface {
	Dispatch(ctx context.Context, roomID string, cmd room.Command) (events.RoomSnapshot, error)
	Snapshot(ctx context.Context, roomID string) (events.RoomSnapshot, error)
	ActiveRooms(ctx context.Context) ([]events.RoomSummary, error)
}

type Handler struct {
	engine Engine
}

func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Dispatch(ctx context.Context, req *connect.Request[DispatchRequest]) (*connect.Response[DispatchResponse], error) {
	snapshot, err := h.engine.Dispatch(ctx, req.Msg.RoomID, req.Msg.Command)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&DispatchResponse{Snapshot: snapshot}), nil
}

func (h *Handler) GetSnapshot(ctx context.Context, req *connect.Request[GetSnapshotRequest]) (*connect.Response[GetSnapshotResponse], error) {
	snapshot, err := h.engine.Snapshot(ctx, req.Msg.RoomID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&GetSnapshotResponse{Snapshot: snapshot}), nil
}

func (h *Handler) ListActiveRooms(ctx context.Context, _ *connect.Request[ListActiveRoomsRequest]) (*connect.Response[ListActiveRoomsResponse], error) {
	rooms, err := h.engine.ActiveRooms(ctx)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&ListActiveRoomsResponse{Rooms: rooms}), nil
}

// NewServiceHandler builds the HTTP handler for the room service and returns
// the path prefix to mount it on.
func NewServiceHandler(h *Handler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(loggingInterceptor()),
	}, opts...)

	mux := http.NewServeMux()
	mux.Handle(DispatchProcedure, connect.NewUnaryHandler(DispatchProcedure, h.Dispatch, opts...))
	mux.Handle(GetSnapshotProcedure, connect.NewUnaryHandler(GetSnapshotProcedure, h.GetSnapshot, opts...))
	mux.Handle(ListActiveRoomsProcedure, connect.NewUnaryHandler(ListActiveRoomsProcedure, h.ListActiveRooms, opts...))
	return "/" + ServiceName + "/", mux
}

func loggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			event := log.Debug()
			if code := connect.CodeOf(err); err != nil && code != connect.CodeFailedPrecondition && code != connect.CodeInvalidArgument && code != connect.CodeNotFound {
				event = log.Error()
			}
			event.
				Err(err).
				Str("procedure", req.Spec().Procedure).
				Str("peer", req.Peer().Addr).
				Dur("duration", time.Since(start)).
				Msg("rpc handled")
			return resp, err
		}
	}
}
