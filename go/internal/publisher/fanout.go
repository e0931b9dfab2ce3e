package publisher

import (
	"github.com/mcdev12/focusroom/go/internal/room"
	"github.com/mcdev12/focusroom/go/internal/room/events"
)

// Fanout hands every snapshot to several emitters in order. Release is
// forwarded to the emitters that implement room.Releaser.
type Fanout struct {
	emitters []room.Emitter
}

// NewFanout skips nil emitters.
func NewFanout(emitters ...room.Emitter) *Fanout {
	f := &Fanout{}
	for _, e := range emitters {
		if e != nil {
			f.emitters = append(f.emitters, e)
		}
	}
	return f
}

func (f *Fanout) Emit(snapshot events.RoomSnapshot) {
	for _, e := range f.emitters {
		e.Emit(snapshot)
	}
}

func (f *Fanout) Release(roomID string) {
	for _, e := range f.emitters {
		if r, ok := e.(room.Releaser); ok {
			r.Release(roomID)
		}
	}
}
