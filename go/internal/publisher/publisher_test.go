package publisher

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

type releasingEmitter struct {
	seen     []uint64
	released []string
}

func (r *releasingEmitter) Emit(s events.RoomSnapshot) { r.seen = append(r.seen, s.Seq) }
func (r *releasingEmitter) Release(roomID string)      { r.released = append(r.released, roomID) }

func TestFanout(t *testing.T) {
	plain := make([]uint64, 0)
	releasing := &releasingEmitter{}
	f := NewFanout(room.EmitterFunc(func(s events.RoomSnapshot) { plain = append(plain, s.Seq) }), nil, releasing)

	f.Emit(events.RoomSnapshot{RoomID: "r", Seq: 1})
	f.Emit(events.RoomSnapshot{RoomID: "r", Seq: 2})
	f.Release("r")

	if diff := cmp.Diff([]uint64{1, 2}, plain); diff != "" {
		t.Errorf("plain emitter (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{1, 2}, releasing.seen); diff != "" {
		t.Errorf("releasing emitter (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r"}, releasing.released); diff != "" {
		t.Errorf("released (-want +got):\n%s", diff)
	}
}

func TestSnapshotMessage(t *testing.T) {
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	snapshot := events.RoomSnapshot{RoomID: "deep-work", Seq: 7, Mode: "working", TimerType: "work", TimerDuration: 1500, TimerRemaining: 1200, ServerTime: at}

	out, err := newSnapshotMsg("room.snapshots", snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if out.msg.Subject != "room.snapshots.deep-work" {
		t.Errorf("subject = %q", out.msg.Subject)
	}
	if out.eventID == "" || out.msg.Header["Event-ID"][0] != out.eventID {
		t.Errorf("event id %q not carried in header %v", out.eventID, out.msg.Header)
	}

	var env events.Envelope
	if err := json.Unmarshal(out.msg.Data, &env); err != nil {
		t.Fatal(err)
	}
	if env.EventType != events.EnvelopeRoomSnapshot || env.RoomID != "deep-work" || !env.Timestamp.Equal(at) {
		t.Errorf("envelope = %+v", env)
	}
	var decoded events.RoomSnapshot
	if err := json.Unmarshal(env.Payload, &decoded); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(snapshot, decoded); diff != "" {
		t.Errorf("payload (-want +got):\n%s", diff)
	}

	again, _ := newSnapshotMsg("room.snapshots", snapshot)
	if again.eventID == out.eventID {
		t.Error("two publishes share a message id")
	}
}

func TestReleasedMessage(t *testing.T) {
	at := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	out, err := newReleasedMsg("room.snapshots", "deep-work", at)
	if err != nil {
		t.Fatal(err)
	}

	var env events.Envelope
	if err := json.Unmarshal(out.msg.Data, &env); err != nil {
		t.Fatal(err)
	}
	var payload events.RoomReleasedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if env.EventType != events.EnvelopeRoomReleased || out.msg.Subject != "room.snapshots.deep-work" {
		t.Errorf("envelope %+v on %s", env, out.msg.Subject)
	}
	if payload.RoomID != "deep-work" || !payload.ReleasedAt.Equal(at) {
		t.Errorf("payload = %+v", payload)
	}
}
