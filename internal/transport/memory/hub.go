// Package memory is an in-process relay transport. A Hub holds any number of
// rooms keyed by id; every peer of a room gets its own Transport. Delivery is
// synchronous: Send calls the receivers' handlers before it returns.
package memory

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pixil98/go-statesync/internal/transport"
)

var (
	ErrHostExists  = errors.New("room already has a host")
	ErrPeerExists  = errors.New("peer already joined")
	ErrUnknownPeer = errors.New("unknown peer")
)

type HubOpt func(*Hub)

// WithLogger sets the logger used for transport warnings.
func WithLogger(l *slog.Logger) HubOpt {
	return func(h *Hub) {
		h.logger = l
	}
}

type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	logger *slog.Logger
}

type room struct {
	id     string
	hostID string
	peers  map[string]*Transport
}

func NewHub(opts ...HubOpt) *Hub {
	h := &Hub{
		rooms:  make(map[string]*room),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds playerID to roomID, creating the room if needed. Peers already in
// the room see a join event.
func (h *Hub) Join(roomID, playerID string, isHost bool) (*Transport, error) {
	if playerID == "" {
		return nil, fmt.Errorf("player id is required")
	}

	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = &room{id: roomID, peers: make(map[string]*Transport)}
		h.rooms[roomID] = r
	}
	if _, exists := r.peers[playerID]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s in room %s", ErrPeerExists, playerID, roomID)
	}
	if isHost && r.hostID != "" {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrHostExists, roomID)
	}

	t := &Transport{
		hub:  h,
		room: r,
		id:   playerID,
		host: isHost,
	}
	if isHost {
		r.hostID = playerID
	}
	others := r.others(playerID)
	r.peers[playerID] = t
	h.mu.Unlock()

	for _, o := range others {
		o.emitJoin(playerID)
	}
	return t, nil
}

// Rooms returns the ids of rooms with at least one peer.
func (h *Hub) Rooms() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) leave(t *Transport) {
	h.mu.Lock()
	r := t.room
	if r.peers[t.id] != t {
		h.mu.Unlock()
		return
	}
	delete(r.peers, t.id)
	wasHost := r.hostID == t.id
	if wasHost {
		r.hostID = ""
	}
	if len(r.peers) == 0 {
		delete(h.rooms, r.id)
	}
	others := r.others(t.id)
	h.mu.Unlock()

	for _, o := range others {
		o.emitLeave(t.id)
		if wasHost {
			o.emitHostGone()
		}
	}
}

func (h *Hub) deliver(from *Transport, data []byte, targetID string) error {
	h.mu.Lock()
	var targets []*Transport
	if targetID == "" {
		targets = from.room.others(from.id)
	} else if targetID != from.id {
		to, ok := from.room.peers[targetID]
		if !ok {
			h.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownPeer, targetID)
		}
		targets = []*Transport{to}
	}
	h.mu.Unlock()

	for _, to := range targets {
		// Each receiver gets its own copy of the bytes.
		to.emitMessage(bytes.Clone(data), from.id)
	}
	return nil
}

// others returns every peer except id, ordered by id. Caller holds the hub lock.
func (r *room) others(id string) []*Transport {
	out := make([]*Transport, 0, len(r.peers))
	for pid, t := range r.peers {
		if pid != id {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

var _ transport.Transport = (*Transport)(nil)
var _ transport.HostWatcher = (*Transport)(nil)
