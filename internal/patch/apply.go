package patch

import (
	"fmt"
)

// Apply performs p against doc and returns the resulting document. Maps are
// mutated in place; the returned value only differs from doc when the root
// itself is replaced or created. Intermediate containers missing along the
// path are created as the next segment implies: a key creates a map, an
// index creates a sequence.
//
// Patches must be applied in order against the exact document they were
// diffed from. There is no rollback when a later patch in a batch fails.
func Apply(doc any, p Patch) (any, error) {
	if !p.Op.valid() {
		return doc, fmt.Errorf("%w: %q", ErrUnknownOp, p.Op)
	}
	if len(p.Path) == 0 {
		if p.Op == OpRemove {
			return nil, nil
		}
		return Clone(p.Value), nil
	}
	return applyAt(doc, p.Path, 0, p)
}

// ApplyAll applies patches in order, stopping at the first failure.
func ApplyAll(doc any, patches []Patch) (any, error) {
	for i, p := range patches {
		next, err := Apply(doc, p)
		if err != nil {
			return doc, fmt.Errorf("patch %d (%s): %w", i, p, err)
		}
		doc = next
	}
	return doc, nil
}

func applyAt(node any, path Path, depth int, p Patch) (any, error) {
	seg := path[depth]
	last := depth == len(path)-1

	if node == nil {
		if seg.IsIndex() {
			node = []any{}
		} else {
			node = map[string]any{}
		}
	}

	switch n := node.(type) {
	case map[string]any:
		if seg.IsIndex() {
			return node, fmt.Errorf("%w: index %d into map at %s", ErrPathMismatch, seg.Index(), path[:depth])
		}
		if last {
			if p.Op == OpRemove {
				delete(n, seg.Key())
			} else {
				n[seg.Key()] = Clone(p.Value)
			}
			return n, nil
		}
		child, ok := n[seg.Key()]
		if !ok && p.Op == OpRemove {
			return n, nil
		}
		child, err := applyAt(child, path, depth+1, p)
		if err != nil {
			return n, err
		}
		n[seg.Key()] = child
		return n, nil

	case []any:
		if !seg.IsIndex() {
			return node, fmt.Errorf("%w: key %q into sequence at %s", ErrPathMismatch, seg.Key(), path[:depth])
		}
		i := seg.Index()
		if i < 0 {
			return node, fmt.Errorf("%w: %d at %s", ErrIndexOutOfRange, i, path[:depth])
		}
		if last {
			if p.Op == OpRemove {
				if i >= len(n) {
					return n, nil
				}
				return append(n[:i], n[i+1:]...), nil
			}
			n = grow(n, i)
			n[i] = Clone(p.Value)
			return n, nil
		}
		if i >= len(n) {
			if p.Op == OpRemove {
				return n, nil
			}
			n = grow(n, i)
		}
		child, err := applyAt(n[i], path, depth+1, p)
		if err != nil {
			return n, err
		}
		n[i] = child
		return n, nil
	}

	return node, fmt.Errorf("%w: %s is a leaf (%T)", ErrPathMismatch, path[:depth], node)
}

// grow pads s with nil so that index i is addressable.
func grow(s []any, i int) []any {
	for len(s) <= i {
		s = append(s, nil)
	}
	return s
}
