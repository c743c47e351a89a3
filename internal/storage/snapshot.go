package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/session"
)

// Snapshot is a saved copy of a host's state.
type Snapshot struct {
	Room    string         `json:"room"`
	Seq     uint64         `json:"seq"`
	SavedAt time.Time      `json:"saved_at"`
	State   map[string]any `json:"state"`
}

func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("snapshot is empty")
	}

	el := errors.NewErrorList()

	if s.Room == "" {
		el.Add(fmt.Errorf("room must be set"))
	}
	if s.State == nil {
		el.Add(fmt.Errorf("state must be set"))
	}

	return el.Err()
}

// SessionSource lists the sessions a Snapshotter saves.
type SessionSource interface {
	Rooms() []string
	Get(string) (*session.Session, bool)
}

// Snapshotter saves host sessions whose sequence moved since the last save.
// It is a driver ticker.
type Snapshotter struct {
	store   Storer[*Snapshot]
	source  SessionSource
	clock   clockwork.Clock
	logger  *slog.Logger
	lastSeq map[string]uint64
}

func NewSnapshotter(store Storer[*Snapshot], source SessionSource, clock clockwork.Clock, logger *slog.Logger) *Snapshotter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshotter{
		store:   store,
		source:  source,
		clock:   clock,
		logger:  logger,
		lastSeq: map[string]uint64{},
	}
}

func (s *Snapshotter) Tick(context.Context) error {
	el := errors.NewErrorList()

	for _, room := range s.source.Rooms() {
		sess, ok := s.source.Get(room)
		if !ok || !sess.IsHost() {
			continue
		}

		// Pending changes reach the snapshot on the next save.
		seq := sess.Seq()
		if last, ok := s.lastSeq[room]; ok && last == seq {
			continue
		}

		if err := s.Save(room, sess); err != nil {
			el.Add(err)
			continue
		}
		s.lastSeq[room] = seq
	}

	err := el.Err()
	if err != nil {
		// A failed write should not stop the loop.
		s.logger.Warn("saving snapshots", "error", err)
	}
	return nil
}

// Save writes the current state of sess for room.
func (s *Snapshotter) Save(room string, sess *session.Session) error {
	state, seq := sess.Snapshot()
	snap := &Snapshot{
		Room:    room,
		Seq:     seq,
		SavedAt: s.clock.Now().UTC(),
		State:   state,
	}
	if err := s.store.Save(room, snap); err != nil {
		return fmt.Errorf("saving snapshot for %s: %w", room, err)
	}
	s.logger.Debug("saved snapshot", "room", room, "seq", snap.Seq)
	return nil
}
