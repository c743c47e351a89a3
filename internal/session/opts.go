package session

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultSyncInterval gives a 20 Hz sync loop.
	DefaultSyncInterval = 50 * time.Millisecond
)

type Opt func(*Session)

// WithSyncInterval sets how often Run diffs and broadcasts host state.
func WithSyncInterval(d time.Duration) Opt {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the wall clock used by Run and message timestamps.
func WithClock(c clockwork.Clock) Opt {
	return func(s *Session) {
		s.clock = c
	}
}

// WithSeed seeds the random source handed to setup, actions and hooks.
func WithSeed(seed int64) Opt {
	return func(s *Session) {
		s.seed = &seed
	}
}

// WithPlayerIDs sets the players passed to setup. By default the host and
// the peers its transport already knows are used.
func WithPlayerIDs(ids ...string) Opt {
	return func(s *Session) {
		s.initialPlayers = ids
	}
}

// WithInitialState makes the host start from state instead of running setup.
// Used to resume from a snapshot.
func WithInitialState(state State, seq uint64) Opt {
	return func(s *Session) {
		s.resume = &resumePoint{state: state, seq: seq}
	}
}

func WithLogger(l *slog.Logger) Opt {
	return func(s *Session) {
		s.logger = l
	}
}
