// Package message defines the envelopes peers exchange and their JSON wire form:
//
//	{"type": "action"|"state_sync"|"event"|"resync", "payload": {...}, "senderId": "...", "timestamp": 0}
package message

import (
	"github.com/pixil98/go-statesync/internal/patch"
)

type Type string

const (
	TypeAction    Type = "action"
	TypeStateSync Type = "state_sync"
	TypeEvent     Type = "event"
	TypeResync    Type = "resync"
)

// Message is one of Action, FullState, Patches, Event or Resync.
type Message interface {
	Type() Type
	isMessage()
}

// Action asks the host to run a named action.
type Action struct {
	Name     string `json:"name"`
	Input    any    `json:"input"`
	TargetID string `json:"targetId,omitempty"`
}

// FullState replaces a mirror wholesale. Seq is the sequence number of the
// last patch batch folded into State.
type FullState struct {
	State map[string]any `json:"fullState"`
	Seq   uint64         `json:"seq"`
}

// Patches is one batch of deltas emitted by a host sync tick.
type Patches struct {
	Patches []patch.Patch `json:"patches"`
	Seq     uint64        `json:"seq"`
}

// Event is a one-way notification that never touches state.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Resync is sent by a client that detected a gap in patch sequence numbers.
type Resync struct {
	LastSeq uint64 `json:"lastSeq"`
}

func (Action) Type() Type    { return TypeAction }
func (FullState) Type() Type { return TypeStateSync }
func (Patches) Type() Type   { return TypeStateSync }
func (Event) Type() Type     { return TypeEvent }
func (Resync) Type() Type    { return TypeResync }

func (Action) isMessage()    {}
func (FullState) isMessage() {}
func (Patches) isMessage()   {}
func (Event) isMessage()     {}
func (Resync) isMessage()    {}

// Envelope wraps a Message with its sender and send time (unix milliseconds).
type Envelope struct {
	Message   Message
	SenderID  string
	Timestamp int64
}
