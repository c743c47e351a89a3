package command

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

type Config struct {
	Nats      NatsConfig     `json:"nats"`
	Snapshots SnapshotConfig `json:"snapshots"`
	Rooms     []RoomConfig   `json:"rooms"`
}

func (c *Config) Validate() error {
	el := errors.NewErrorList()

	el.Add(c.Nats.validate())
	el.Add(c.Snapshots.validate())

	if len(c.Rooms) == 0 {
		el.Add(fmt.Errorf("at least one room is required"))
	}

	seen := map[string]bool{}
	for i, r := range c.Rooms {
		err := r.validate()
		if err != nil {
			el.Add(fmt.Errorf("room %d: %w", i, err))
		}
		if seen[r.ID] {
			el.Add(fmt.Errorf("room %d: duplicate id %q", i, r.ID))
		}
		seen[r.ID] = true
	}

	return el.Err()
}
