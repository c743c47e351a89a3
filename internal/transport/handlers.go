package transport

import (
	"sync"
)

// Handlers is a registry of callbacks with removable entries. Transports embed
// it to fan one event out to many subscribers. Snapshot returns the current
// handlers so they can be invoked without holding the registry lock.
type Handlers[F any] struct {
	mu     sync.Mutex
	nextID uint64
	order  []uint64
	byID   map[uint64]F
}

// Add registers f and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (h *Handlers[F]) Add(f F) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.byID == nil {
		h.byID = make(map[uint64]F)
	}
	h.nextID++
	id := h.nextID
	h.byID[id] = f
	h.order = append(h.order, id)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if _, ok := h.byID[id]; !ok {
			return
		}
		delete(h.byID, id)
		for i, o := range h.order {
			if o == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
}

// Snapshot returns the registered handlers in registration order.
func (h *Handlers[F]) Snapshot() []F {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]F, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.byID[id])
	}
	return out
}

// Len returns the number of registered handlers.
func (h *Handlers[F]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}

// Clear removes every handler.
func (h *Handlers[F]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.order = nil
	h.byID = nil
}
