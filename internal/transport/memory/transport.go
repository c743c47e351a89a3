package memory

import (
	"sync/atomic"

	"github.com/pixil98/go-statesync/internal/transport"
)

// Transport is one peer's view of a Hub room.
type Transport struct {
	hub  *Hub
	room *room
	id   string
	host bool

	closed atomic.Bool

	msgs     transport.Handlers[transport.MessageHandler]
	joins    transport.Handlers[transport.PeerHandler]
	leaves   transport.Handlers[transport.PeerHandler]
	hostGone transport.Handlers[func()]
}

func (t *Transport) Send(data []byte, targetID string) error {
	if t.closed.Load() {
		t.hub.logger.Warn("send on disconnected transport", "room", t.room.id, "player", t.id)
		return nil
	}
	return t.hub.deliver(t, data, targetID)
}

func (t *Transport) OnMessage(h transport.MessageHandler) func() {
	return t.msgs.Add(h)
}

func (t *Transport) OnPeerJoin(h transport.PeerHandler) func() {
	return t.joins.Add(h)
}

func (t *Transport) OnPeerLeave(h transport.PeerHandler) func() {
	return t.leaves.Add(h)
}

func (t *Transport) OnHostDisconnect(h func()) func() {
	return t.hostGone.Add(h)
}

func (t *Transport) PeerIDs() []string {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()

	if t.closed.Load() {
		return nil
	}
	others := t.room.others(t.id)
	ids := make([]string, len(others))
	for i, o := range others {
		ids[i] = o.id
	}
	return ids
}

func (t *Transport) PlayerID() string {
	return t.id
}

func (t *Transport) IsHost() bool {
	return t.host
}

// Disconnect leaves the room. It is safe to call more than once.
func (t *Transport) Disconnect() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.hub.leave(t)
	t.msgs.Clear()
	t.joins.Clear()
	t.leaves.Clear()
	t.hostGone.Clear()
	return nil
}

func (t *Transport) emitMessage(data []byte, from string) {
	if t.closed.Load() {
		return
	}
	for _, h := range t.msgs.Snapshot() {
		h(data, from)
	}
}

func (t *Transport) emitJoin(id string) {
	for _, h := range t.joins.Snapshot() {
		h(id)
	}
}

func (t *Transport) emitLeave(id string) {
	for _, h := range t.leaves.Snapshot() {
		h(id)
	}
}

func (t *Transport) emitHostGone() {
	for _, h := range t.hostGone.Snapshot() {
		h()
	}
}
