package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/transport"
)

// Registry tracks the sessions of a process by room id. Each session owns
// its transport once opened here.
type Registry struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	ctx      context.Context
	wg       sync.WaitGroup
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Open creates a session for roomID. If the registry is already running the
// session starts immediately.
func (r *Registry) Open(roomID string, def *Definition, tr transport.Transport, opts ...Opt) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[roomID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, roomID)
	}

	opts = append([]Opt{WithLogger(r.logger.With("room", roomID))}, opts...)
	s, err := New(def, tr, opts...)
	if err != nil {
		return nil, fmt.Errorf("opening room %s: %w", roomID, err)
	}
	r.sessions[roomID] = s

	if r.ctx != nil {
		r.run(roomID, s)
	}
	return s, nil
}

func (r *Registry) Get(roomID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[roomID]
	return s, ok
}

// Rooms returns the open room ids, sorted.
func (r *Registry) Rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close destroys the session for roomID and disconnects its transport.
func (r *Registry) Close(roomID string) error {
	r.mu.Lock()
	s, ok := r.sessions[roomID]
	delete(r.sessions, roomID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRoom, roomID)
	}
	return closeSession(s)
}

// CloseAll closes every open session.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	ids := make([]string, 0, len(sessions))
	for id := range sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	el := errors.NewErrorList()
	for _, id := range ids {
		if err := closeSession(sessions[id]); err != nil {
			el.Add(fmt.Errorf("closing room %s: %w", id, err))
		}
	}
	return el.Err()
}

// Start runs every session until ctx is canceled, then closes them all.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.ctx != nil {
		r.mu.Unlock()
		return fmt.Errorf("registry already started")
	}
	r.ctx = ctx
	for id, s := range r.sessions {
		r.run(id, s)
	}
	r.mu.Unlock()

	<-ctx.Done()

	err := r.CloseAll()
	r.wg.Wait()
	return err
}

// run starts s in the background. Caller holds r.mu.
func (r *Registry) run(roomID string, s *Session) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := s.Run(r.ctx); err != nil {
			r.logger.Error("session stopped", "room", roomID, "error", err)
		}
	}()
}

func closeSession(s *Session) error {
	s.Destroy()
	if err := s.tr.Disconnect(); err != nil {
		return fmt.Errorf("disconnecting: %w", err)
	}
	return nil
}
