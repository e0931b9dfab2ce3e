package roomrpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

func newTestClient(t *testing.T) (*Client, *room.Engine) {
	t.Helper()
	engine := room.NewEngine(room.DefaultConfig(), nil, room.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(engine.Close)

	mux := http.NewServeMux()
	mux.Handle(NewServiceHandler(NewHandler(engine)))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return NewClient(server.Client(), server.URL+"/"), engine
}

func TestClientRoundTrip(t *testing.T) {
	client, engine := newTestClient(t)
	ctx := context.Background()

	attached, err := client.Dispatch(ctx, "deep-work", room.Command{Type: room.CommandAttach, ParticipantID: "u1", Name: "Ada"})
	if err != nil {
		t.Fatal(err)
	}
	local, err := engine.Snapshot(ctx, "deep-work")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(local, attached); diff != "" {
		t.Errorf("remote snapshot differs from engine (-engine +remote):\n%s", diff)
	}

	started, err := client.Dispatch(ctx, "deep-work", room.Command{Type: room.CommandStartWork, ParticipantID: "u1", DurationMinutes: 25})
	if err != nil {
		t.Fatal(err)
	}
	if started.Mode != "working" || started.TimerRemaining != 1500 || started.Cue != events.CueStarted {
		t.Errorf("started: %+v", started)
	}

	snapshot, err := client.Snapshot(ctx, "deep-work")
	if err != nil {
		t.Fatal(err)
	}
	if snapshot.Seq != started.Seq {
		t.Errorf("snapshot seq = %d, want %d", snapshot.Seq, started.Seq)
	}

	rooms, err := client.ActiveRooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []events.RoomSummary{{RoomID: "deep-work", Mode: "working", UserCount: 1, TimerRemaining: 1500, Seq: started.Seq}}
	if diff := cmp.Diff(want, rooms); diff != "" {
		t.Errorf("active rooms (-want +got):\n%s", diff)
	}
}

func TestClientErrors(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if _, err := client.Dispatch(ctx, "r1", room.Command{Type: room.CommandAttach, ParticipantID: "u1", Name: "Ada"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		roomID string
		cmd    room.Command
		want   error
	}{
		{"guard failure", "r1", room.Command{Type: room.CommandPause}, room.ErrInvalidCommand},
		{"bad duration", "r1", room.Command{Type: room.CommandStartWork, DurationMinutes: 99}, room.ErrInvalidArgument},
		{"missing room", "r2", room.Command{Type: room.CommandReset}, room.ErrUnknownRoom},
		{"missing participant", "r1", room.Command{Type: room.CommandUpdateName, ParticipantID: "u9", Name: "Eve"}, room.ErrUnknownParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Dispatch(ctx, tt.roomID, tt.cmd)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := client.Snapshot(ctx, "nowhere"); !errors.Is(err, room.ErrUnknownRoom) {
		t.Errorf("snapshot err = %v, want ErrUnknownRoom", err)
	}
}

func TestToConnectErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{room.ErrInvalidCommand, connect.CodeFailedPrecondition},
		{room.ErrInvalidArgument, connect.CodeInvalidArgument},
		{room.ErrUnknownRoom, connect.CodeNotFound},
		{room.ErrUnknownParticipant, connect.CodeNotFound},
		{room.ErrEngineClosed, connect.CodeUnavailable},
		{context.DeadlineExceeded, connect.CodeDeadlineExceeded},
		{errors.New("boom"), connect.CodeInternal},
	}
	for _, tt := range tests {
		if got := connect.CodeOf(toConnectError(tt.err)); got != tt.want {
			t.Errorf("code for %v = %v, want %v", tt.err, got, tt.want)
		}
	}

	if toConnectError(nil) != nil {
		t.Error("nil error mapped to non-nil")
	}
}
