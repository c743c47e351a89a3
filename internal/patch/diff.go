package patch

import (
	"sort"
)

// Diff returns the patches that turn old into new. Map keys are visited in
// sorted order so structurally equal inputs always yield the same sequence.
// Sequences are compared index by index; when one shrinks, the trailing
// removes are emitted from the highest index down so they can be applied in
// order without shifting each other.
func Diff(old, new any) []Patch {
	var out []Patch
	diff(nil, old, new, &out)
	return out
}

func diff(path Path, a, b any, out *[]Patch) {
	switch av := a.(type) {
	case map[string]any:
		if bv, ok := b.(map[string]any); ok {
			diffMap(path, av, bv, out)
			return
		}
	case []any:
		if bv, ok := b.([]any); ok {
			diffSeq(path, av, bv, out)
			return
		}
	default:
		if !isContainer(b) && leafEqual(a, b) {
			return
		}
	}
	*out = append(*out, Patch{Op: OpReplace, Path: path, Value: Clone(b)})
}

func diffMap(path Path, a, b map[string]any, out *[]Patch) {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		av, inA := a[k]
		bv, inB := b[k]
		switch {
		case inA && inB:
			diff(path.with(Key(k)), av, bv, out)
		case inB:
			*out = append(*out, Patch{Op: OpAdd, Path: path.with(Key(k)), Value: Clone(bv)})
		default:
			*out = append(*out, Patch{Op: OpRemove, Path: path.with(Key(k))})
		}
	}
}

func diffSeq(path Path, a, b []any, out *[]Patch) {
	common := min(len(a), len(b))
	for i := 0; i < common; i++ {
		diff(path.with(Index(i)), a[i], b[i], out)
	}
	for i := common; i < len(b); i++ {
		*out = append(*out, Patch{Op: OpAdd, Path: path.with(Index(i)), Value: Clone(b[i])})
	}
	for i := len(a) - 1; i >= common; i-- {
		*out = append(*out, Patch{Op: OpRemove, Path: path.with(Index(i))})
	}
}

// Equal reports whether a and b are structurally equal under the same rules
// Diff uses.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return !isContainer(b) && leafEqual(a, b)
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}
