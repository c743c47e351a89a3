// Package patch computes and applies minimal deltas between two JSON-shaped
// trees built from map[string]any, []any and scalar leaves.
package patch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Op string

const (
	OpReplace Op = "replace"
	OpAdd     Op = "add"
	OpRemove  Op = "remove"
)

func (o Op) valid() bool {
	switch o {
	case OpReplace, OpAdd, OpRemove:
		return true
	}
	return false
}

// Segment is one step of a Path: either a map key or a sequence index.
type Segment struct {
	key     string
	index   int
	isIndex bool
}

// Key returns a map-key segment.
func Key(k string) Segment {
	return Segment{key: k}
}

// Index returns a sequence-index segment.
func Index(i int) Segment {
	return Segment{index: i, isIndex: true}
}

func (s Segment) IsIndex() bool {
	return s.isIndex
}

func (s Segment) Key() string {
	return s.key
}

func (s Segment) Index() int {
	return s.index
}

func (s Segment) String() string {
	if s.isIndex {
		return strconv.Itoa(s.index)
	}
	return s.key
}

func (s Segment) MarshalJSON() ([]byte, error) {
	if s.isIndex {
		return json.Marshal(s.index)
	}
	return json.Marshal(s.key)
}

func (s *Segment) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		*s = Key(v)
	case float64:
		if v != float64(int(v)) {
			return fmt.Errorf("path index %v is not an integer", v)
		}
		*s = Index(int(v))
	default:
		return fmt.Errorf("path segment must be a string or number, got %s", string(b))
	}
	return nil
}

// Path is the ordered sequence of segments from the root to a value.
type Path []Segment

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return "/" + strings.Join(parts, "/")
}

func (p Path) with(s Segment) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, s)
}

// Patch is a single replace, add or remove at Path. Value is unused for remove.
type Patch struct {
	Op    Op   `json:"op"`
	Path  Path `json:"path"`
	Value any  `json:"value,omitempty"`
}

// MarshalJSON keeps an explicit null value on add/replace and drops it on remove.
func (p Patch) MarshalJSON() ([]byte, error) {
	if p.Path == nil {
		p.Path = Path{}
	}
	if p.Op == OpRemove {
		return json.Marshal(struct {
			Op   Op   `json:"op"`
			Path Path `json:"path"`
		}{p.Op, p.Path})
	}
	return json.Marshal(struct {
		Op    Op   `json:"op"`
		Path  Path `json:"path"`
		Value any  `json:"value"`
	}{p.Op, p.Path, p.Value})
}

func (p *Patch) UnmarshalJSON(b []byte) error {
	var raw struct {
		Op    Op              `json:"op"`
		Path  Path            `json:"path"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if !raw.Op.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOp, raw.Op)
	}
	p.Op = raw.Op
	p.Path = raw.Path
	p.Value = nil
	if p.Op != OpRemove && len(raw.Value) > 0 {
		if err := json.Unmarshal(raw.Value, &p.Value); err != nil {
			return fmt.Errorf("decoding value at %s: %w", p.Path, err)
		}
	}
	return nil
}

func (p Patch) String() string {
	if p.Op == OpRemove {
		return fmt.Sprintf("%s %s", p.Op, p.Path)
	}
	return fmt.Sprintf("%s %s = %v", p.Op, p.Path, p.Value)
}
