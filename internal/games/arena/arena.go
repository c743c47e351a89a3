// Package arena is a small coin-collecting game played on a bounded grid.
//
// State shape:
//
//	{
//	  "tick":      n,
//	  "next_coin": n,
//	  "players":   {id: {"x": n, "y": n, "score": n}},
//	  "coins":     {id: {"x": n, "y": n}}
//	}
package arena

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/pixil98/go-statesync/internal/rng"
	"github.com/pixil98/go-statesync/internal/session"
)

const (
	Name = "arena"

	Width  = 16
	Height = 16
)

var (
	ErrNoPlayer   = errors.New("player not in arena")
	ErrNoCoin     = errors.New("coin not in arena")
	ErrOutOfReach = errors.New("coin out of reach")
)

type MoveInput struct {
	DX int `json:"dx"`
	DY int `json:"dy"`
}

type CollectInput struct {
	Coin string `json:"coin"`
}

func Definition() *session.Definition {
	return &session.Definition{
		Setup: setup,
		Actions: map[string]session.Action{
			"move":       {Apply: move},
			"collect":    {Apply: collect},
			"spawn_coin": {Apply: spawnCoin},
			"reset":      {Apply: reset},
		},
		OnPlayerJoin:  join,
		OnPlayerLeave: leave,
	}
}

func setup(playerIDs []string, r *rng.Source) session.State {
	players := map[string]any{}
	for _, id := range playerIDs {
		players[id] = spawn(r)
	}
	return session.State{
		"tick":      0,
		"next_coin": 0,
		"players":   players,
		"coins":     map[string]any{},
	}
}

func spawn(r *rng.Source) map[string]any {
	return map[string]any{
		"x":     r.Range(0, Width),
		"y":     r.Range(0, Height),
		"score": 0,
	}
}

func join(state session.State, ctx session.Context) error {
	players := section(state, "players")
	if _, ok := players[ctx.PlayerID]; ok {
		return nil
	}
	players[ctx.PlayerID] = spawn(ctx.Random)
	return nil
}

func leave(state session.State, ctx session.Context) error {
	delete(section(state, "players"), ctx.PlayerID)
	return nil
}

func move(state session.State, ctx session.Context, input any) error {
	var in MoveInput
	if err := decodeInput(input, &in); err != nil {
		return err
	}

	p, err := player(state, ctx.TargetID)
	if err != nil {
		return err
	}
	p["x"] = clamp(num(p["x"])+clamp(in.DX, -1, 1), 0, Width-1)
	p["y"] = clamp(num(p["y"])+clamp(in.DY, -1, 1), 0, Height-1)
	advance(state)
	return nil
}

func collect(state session.State, ctx session.Context, input any) error {
	var in CollectInput
	if err := decodeInput(input, &in); err != nil {
		return err
	}

	p, err := player(state, ctx.TargetID)
	if err != nil {
		return err
	}
	coins := section(state, "coins")
	c, ok := coins[in.Coin].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoCoin, in.Coin)
	}
	if abs(num(c["x"])-num(p["x"])) > 1 || abs(num(c["y"])-num(p["y"])) > 1 {
		return fmt.Errorf("%w: %q", ErrOutOfReach, in.Coin)
	}

	delete(coins, in.Coin)
	p["score"] = num(p["score"]) + 1
	advance(state)
	return nil
}

func spawnCoin(state session.State, ctx session.Context, _ any) error {
	n := num(state["next_coin"])
	state["next_coin"] = n + 1

	section(state, "coins")[fmt.Sprintf("c%d", n)] = map[string]any{
		"x": ctx.Random.Range(0, Width),
		"y": ctx.Random.Range(0, Height),
	}
	advance(state)
	return nil
}

func reset(state session.State, ctx session.Context, _ any) error {
	players := section(state, "players")
	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	// Sorted so the same seed respawns everyone in the same place.
	sort.Strings(ids)
	for _, id := range ids {
		players[id] = spawn(ctx.Random)
	}

	state["coins"] = map[string]any{}
	state["next_coin"] = 0
	state["tick"] = 0
	return nil
}

func advance(state session.State) {
	state["tick"] = num(state["tick"]) + 1
}

func player(state session.State, id string) (map[string]any, error) {
	p, ok := section(state, "players")[id].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoPlayer, id)
	}
	return p, nil
}

// section returns state[key], creating it when a snapshot or a reset left it
// missing.
func section(state session.State, key string) map[string]any {
	m, ok := state[key].(map[string]any)
	if !ok {
		m = map[string]any{}
		state[key] = m
	}
	return m
}

// decodeInput copies an action input into v. Inputs arrive as Go values from
// the host and as decoded JSON from clients.
func decodeInput(input any, v any) error {
	if input == nil {
		return nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("encoding input: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding input: %w", err)
	}
	return nil
}

// num reads a number written by the host (int) or restored from JSON (float64).
func num(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
