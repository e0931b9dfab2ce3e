package room

import (
	"sort"

	"github.com/mcdev12/focusroom/go/internal/room/events"
)

// participants tracks the identities attached to one room. Identity is the key;
// display names may collide.
type participants struct {
	names map[string]string
}

func newParticipants() *participants {
	return &participants{names: make(map[string]string)}
}

// attach adds or refreshes an entry and reports whether the identity is new.
func (p *participants) attach(id, name string) bool {
	_, existed := p.names[id]
	p.names[id] = name
	return !existed
}

func (p *participants) detach(id string) bool {
	if _, ok := p.names[id]; !ok {
		return false
	}
	delete(p.names, id)
	return true
}

// rename only ever touches the entry of the issuing identity.
func (p *participants) rename(id, name string) bool {
	if _, ok := p.names[id]; !ok {
		return false
	}
	p.names[id] = name
	return true
}

func (p *participants) count() int {
	return len(p.names)
}

// list returns the entries ordered by identity so snapshots are stable.
func (p *participants) list() []events.Participant {
	out := make([]events.Participant, 0, len(p.names))
	for id, name := range p.names {
		out = append(out, events.Participant{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
