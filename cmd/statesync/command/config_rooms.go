package command

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/games"
	"github.com/pixil98/go-statesync/internal/session"
	"github.com/pixil98/go-statesync/internal/storage"
)

const (
	RoleHost   = "host"
	RoleClient = "client"
)

type RoomConfig struct {
	ID   string `json:"id"`
	Game string `json:"game"`
	Role string `json:"role"`

	// PlayerID defaults to a random uuid.
	PlayerID string `json:"player_id"`

	// Players seeds the host's setup. Defaults to the host and connected peers.
	Players      []string `json:"players"`
	SyncInterval string   `json:"sync_interval"`
	Seed         *int64   `json:"seed"`
}

func (c *RoomConfig) validate() error {
	el := errors.NewErrorList()

	if !storage.ValidID(c.ID) {
		el.Add(fmt.Errorf("id %q may only contain letters, digits, '-' and '_'", c.ID))
	}

	if _, ok := games.Lookup(c.Game); !ok {
		el.Add(fmt.Errorf("unknown game %q (have %v)", c.Game, games.Names()))
	}

	if c.Role != RoleHost && c.Role != RoleClient {
		el.Add(fmt.Errorf("role must be %q or %q", RoleHost, RoleClient))
	}

	if c.PlayerID != "" && !storage.ValidID(c.PlayerID) {
		el.Add(fmt.Errorf("player_id %q may only contain letters, digits, '-' and '_'", c.PlayerID))
	}

	if c.SyncInterval != "" {
		d, err := time.ParseDuration(c.SyncInterval)
		if err != nil {
			el.Add(fmt.Errorf("parsing sync_interval: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("sync_interval must be positive"))
		}
	}

	return el.Err()
}

func (c *RoomConfig) isHost() bool {
	return c.Role == RoleHost
}

func (c *RoomConfig) playerID() string {
	if c.PlayerID != "" {
		return c.PlayerID
	}
	return uuid.NewString()
}

func (c *RoomConfig) sessionOpts() []session.Opt {
	var opts []session.Opt
	if d, err := time.ParseDuration(c.SyncInterval); err == nil {
		opts = append(opts, session.WithSyncInterval(d))
	}
	if c.Seed != nil {
		opts = append(opts, session.WithSeed(*c.Seed))
	}
	if len(c.Players) > 0 {
		opts = append(opts, session.WithPlayerIDs(c.Players...))
	}
	return opts
}
