// Package games lists the simulations a process can host by name.
package games

import (
	"sort"

	"github.com/pixil98/go-statesync/internal/games/arena"
	"github.com/pixil98/go-statesync/internal/session"
)

var builtin = map[string]func() *session.Definition{
	arena.Name: arena.Definition,
}

// Lookup returns a fresh definition for name.
func Lookup(name string) (*session.Definition, bool) {
	f, ok := builtin[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
