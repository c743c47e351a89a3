package session

import (
	"fmt"
	"sort"

	"github.com/pixil98/go-errors"
	"github.com/pixil98/go-statesync/internal/rng"
)

// State is the mutable tree a host owns. It must stay JSON-shaped: nested
// map[string]any and []any with scalar leaves, no cycles.
type State = map[string]any

// Context describes who triggered an action or hook.
type Context struct {
	PlayerID string
	// TargetID defaults to PlayerID.
	TargetID string
	IsHost   bool
	Random   *rng.Source
}

// ApplyFunc mutates state in place. A returned error reaches the submitter;
// mutations made before the error are kept.
type ApplyFunc func(state State, ctx Context, input any) error

type Action struct {
	Apply ApplyFunc
}

// HookFunc runs on the host when a peer joins or leaves. ctx.PlayerID is
// the peer in question.
type HookFunc func(state State, ctx Context) error

// SetupFunc builds the initial state from the starting players.
type SetupFunc func(playerIDs []string, random *rng.Source) State

// Definition is the simulation logic a host runs.
type Definition struct {
	Setup         SetupFunc
	Actions       map[string]Action
	OnPlayerJoin  HookFunc
	OnPlayerLeave HookFunc
}

func (d *Definition) Validate() error {
	if d == nil {
		return fmt.Errorf("definition is nil")
	}

	el := errors.NewErrorList()

	if d.Setup == nil {
		el.Add(fmt.Errorf("setup is required"))
	}

	names := make([]string, 0, len(d.Actions))
	for name := range d.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "" {
			el.Add(fmt.Errorf("action name cannot be empty"))
			continue
		}
		if d.Actions[name].Apply == nil {
			el.Add(fmt.Errorf("action %q: apply is required", name))
		}
	}

	return el.Err()
}

// ActionNames returns the defined action names, sorted.
func (d *Definition) ActionNames() []string {
	names := make([]string, 0, len(d.Actions))
	for name := range d.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
