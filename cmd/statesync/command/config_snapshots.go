package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/storage"
)

const defaultSnapshotInterval = 30 * time.Second

type SnapshotConfig struct {
	// Path is the snapshot directory. Snapshots are off when empty.
	Path     string `json:"path"`
	Interval string `json:"interval"`
}

func (c *SnapshotConfig) validate() error {
	el := errors.NewErrorList()

	if c.Interval != "" {
		d, err := time.ParseDuration(c.Interval)
		if err != nil {
			el.Add(fmt.Errorf("snapshots: parsing interval: %w", err))
		} else if d <= 0 {
			el.Add(fmt.Errorf("snapshots: interval must be positive"))
		}
	}

	return el.Err()
}

func (c *SnapshotConfig) interval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d <= 0 {
		return defaultSnapshotInterval
	}
	return d
}

// buildStore returns nil when snapshots are off.
func (c *SnapshotConfig) buildStore() (*storage.FileStore[*storage.Snapshot], error) {
	if c.Path == "" {
		return nil, nil
	}
	return storage.NewFileStore[*storage.Snapshot](c.Path)
}
