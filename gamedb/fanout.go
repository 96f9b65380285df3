package gamedb

import (
	"github.com/stavmo/SPL-assignment3/gameevent"
	"github.com/stavmo/SPL-assignment3/stompprotocol"
)

// Fanout forwards every event to each of its stores in order.
type Fanout []stompprotocol.EventStore

// NewFanout skips nil stores.
func NewFanout(stores ...stompprotocol.EventStore) Fanout {
	out := make(Fanout, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Ingest implements stompprotocol.EventStore.
func (f Fanout) Ingest(game, user string, ev gameevent.Event) {
	for _, s := range f {
		s.Ingest(game, user, ev)
	}
}

var (
	_ stompprotocol.EventStore = (*DB)(nil)
	_ stompprotocol.EventStore = Fanout(nil)
)
