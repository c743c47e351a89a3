package message

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pixil98/go-statesync/internal/patch"
)

type wireEnvelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	SenderID  string          `json:"senderId,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Encode serializes e to its wire form.
func Encode(e Envelope) ([]byte, error) {
	if e.Message == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}

	var payload any
	switch m := e.Message.(type) {
	case Action:
		payload = m
	case FullState:
		if m.State == nil {
			m.State = map[string]any{}
		}
		payload = m
	case Patches:
		if m.Patches == nil {
			m.Patches = []patch.Patch{}
		}
		payload = m
	case Event:
		payload = m
	case Resync:
		payload = m
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, e.Message)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", e.Message.Type(), err)
	}

	return json.Marshal(wireEnvelope{
		Type:      e.Message.Type(),
		Payload:   raw,
		SenderID:  e.SenderID,
		Timestamp: e.Timestamp,
	})
}

// Decode parses a wire envelope. A state_sync payload must carry exactly one
// of fullState or patches.
func Decode(data []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	env := Envelope{
		SenderID:  w.SenderID,
		Timestamp: w.Timestamp,
	}

	var err error
	switch w.Type {
	case TypeAction:
		var m Action
		err = decodePayload(w.Payload, &m)
		if err == nil && m.Name == "" {
			err = fmt.Errorf("%w: action name is required", ErrMalformed)
		}
		env.Message = m
	case TypeStateSync:
		env.Message, err = decodeStateSync(w.Payload)
	case TypeEvent:
		var m Event
		err = decodePayload(w.Payload, &m)
		if err == nil && m.Name == "" {
			err = fmt.Errorf("%w: event name is required", ErrMalformed)
		}
		env.Message = m
	case TypeResync:
		var m Resync
		err = decodePayload(w.Payload, &m)
		env.Message = m
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}
	if err != nil {
		return Envelope{}, err
	}

	return env, nil
}

func decodeStateSync(raw json.RawMessage) (Message, error) {
	var probe map[string]json.RawMessage
	if err := decodePayload(raw, &probe); err != nil {
		return nil, err
	}

	full, hasFull := probe["fullState"]
	_, hasPatches := probe["patches"]
	switch {
	case hasFull && hasPatches:
		return nil, fmt.Errorf("%w: state_sync carries both fullState and patches", ErrMalformed)
	case hasFull:
		if bytes.Equal(bytes.TrimSpace(full), []byte("null")) {
			return nil, fmt.Errorf("%w: fullState is null", ErrMalformed)
		}
		var m FullState
		if err := decodePayload(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	case hasPatches:
		var m Patches
		if err := decodePayload(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: state_sync carries neither fullState nor patches", ErrMalformed)
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
