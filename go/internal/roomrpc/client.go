package roomrpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

// Client talks to a remote engine. It satisfies the gateway's Backend, so a
// gateway-only instance can serve rooms owned by another process.
type Client struct {
	dispatch        *connect.Client[DispatchRequest, DispatchResponse]
	getSnapshot     *connect.Client[GetSnapshotRequest, GetSnapshotResponse]
	listActiveRooms *connect.Client[ListActiveRoomsRequest, ListActiveRoomsResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)

	return &Client{
		dispatch:        connect.NewClient[DispatchRequest, DispatchResponse](httpClient, baseURL+DispatchProcedure, opts...),
		getSnapshot:     connect.NewClient[GetSnapshotRequest, GetSnapshotResponse](httpClient, baseURL+GetSnapshotProcedure, opts...),
		listActiveRooms: connect.NewClient[ListActiveRoomsRequest, ListActiveRoomsResponse](httpClient, baseURL+ListActiveRoomsProcedure, opts...),
	}
}

func (c *Client) Dispatch(ctx context.Context, roomID string, cmd room.Command) (events.RoomSnapshot, error) {
	resp, err := c.dispatch.CallUnary(ctx, connect.NewRequest(&DispatchRequest{RoomID: roomID, Command: cmd}))
	if err != nil {
		return events.RoomSnapshot{}, fromConnectError(err)
	}
	return resp.Msg.Snapshot, nil
}

func (c *Client) Snapshot(ctx context.Context, roomID string) (events.RoomSnapshot, error) {
	resp, err := c.getSnapshot.CallUnary(ctx, connect.NewRequest(&GetSnapshotRequest{RoomID: roomID}))
	if err != nil {
		return events.RoomSnapshot{}, fromConnectError(err)
	}
	return resp.Msg.Snapshot, nil
}

func (c *Client) ActiveRooms(ctx context.Context) ([]events.RoomSummary, error) {
	resp, err := c.listActiveRooms.CallUnary(ctx, connect.NewRequest(&ListActiveRoomsRequest{}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.Rooms, nil
}
