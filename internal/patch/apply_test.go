package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pixil98/go-statesync/internal/rng"
	"github.com/pixil98/go-testutil"
)

func TestApply(t *testing.T) {
	tests := map[string]struct {
		doc    any
		patch  Patch
		exp    any
		expErr error
	}{
		"replace leaf": {
			doc:   map[string]any{"score": 0},
			patch: Patch{Op: OpReplace, Path: Path{Key("score")}, Value: 3},
			exp:   map[string]any{"score": 3},
		},
		"add creates intermediate maps": {
			doc:   map[string]any{},
			patch: Patch{Op: OpAdd, Path: Path{Key("a"), Key("b"), Key("c")}, Value: true},
			exp:   map[string]any{"a": map[string]any{"b": map[string]any{"c": true}}},
		},
		"add creates intermediate sequence": {
			doc:   map[string]any{},
			patch: Patch{Op: OpAdd, Path: Path{Key("rows"), Index(1), Key("v")}, Value: 1},
			exp:   map[string]any{"rows": []any{nil, map[string]any{"v": 1}}},
		},
		"remove map key": {
			doc:   map[string]any{"players": map[string]any{"p1": 1, "p2": 2}},
			patch: Patch{Op: OpRemove, Path: Path{Key("players"), Key("p1")}},
			exp:   map[string]any{"players": map[string]any{"p2": 2}},
		},
		"remove splices sequence": {
			doc:   map[string]any{"log": []any{"a", "b", "c"}},
			patch: Patch{Op: OpRemove, Path: Path{Key("log"), Index(1)}},
			exp:   map[string]any{"log": []any{"a", "c"}},
		},
		"remove missing key is a no-op": {
			doc:   map[string]any{"a": 1},
			patch: Patch{Op: OpRemove, Path: Path{Key("x"), Key("y")}},
			exp:   map[string]any{"a": 1},
		},
		"remove past end is a no-op": {
			doc:   map[string]any{"log": []any{"a"}},
			patch: Patch{Op: OpRemove, Path: Path{Key("log"), Index(4)}},
			exp:   map[string]any{"log": []any{"a"}},
		},
		"empty path replaces root": {
			doc:   map[string]any{"a": 1},
			patch: Patch{Op: OpReplace, Value: map[string]any{"b": 2}},
			exp:   map[string]any{"b": 2},
		},
		"nil document becomes map": {
			doc:   nil,
			patch: Patch{Op: OpAdd, Path: Path{Key("a")}, Value: 1},
			exp:   map[string]any{"a": 1},
		},
		"index into map": {
			doc:    map[string]any{"a": map[string]any{}},
			patch:  Patch{Op: OpAdd, Path: Path{Key("a"), Index(0)}, Value: 1},
			expErr: ErrPathMismatch,
		},
		"key into sequence": {
			doc:    map[string]any{"a": []any{}},
			patch:  Patch{Op: OpAdd, Path: Path{Key("a"), Key("b")}, Value: 1},
			expErr: ErrPathMismatch,
		},
		"through a leaf": {
			doc:    map[string]any{"a": 5},
			patch:  Patch{Op: OpAdd, Path: Path{Key("a"), Key("b")}, Value: 1},
			expErr: ErrPathMismatch,
		},
		"negative index": {
			doc:    map[string]any{"a": []any{}},
			patch:  Patch{Op: OpAdd, Path: Path{Key("a"), Index(-1)}, Value: 1},
			expErr: ErrIndexOutOfRange,
		},
		"unknown op": {
			doc:    map[string]any{},
			patch:  Patch{Op: "move", Path: Path{Key("a")}},
			expErr: ErrUnknownOp,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := Apply(tt.doc, tt.patch)
			if tt.expErr != nil {
				if !errors.Is(err, tt.expErr) {
					t.Fatalf("error = %v, expected %v", err, tt.expErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.exp, got); diff != "" {
				t.Errorf("document mismatch (-exp +got):\n%s", diff)
			}
		})
	}
}

func TestApply_ClonesValue(t *testing.T) {
	value := map[string]any{"x": 1}
	doc, err := Apply(map[string]any{}, Patch{Op: OpAdd, Path: Path{Key("p")}, Value: value})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	value["x"] = 2
	testutil.AssertEqual(t, "applied value", doc.(map[string]any)["p"].(map[string]any)["x"], any(1))
}

func TestApplyAll_StopsAtFirstError(t *testing.T) {
	doc := map[string]any{"a": 1}
	_, err := ApplyAll(doc, []Patch{
		{Op: OpReplace, Path: Path{Key("a")}, Value: 2},
		{Op: OpAdd, Path: Path{Key("a"), Key("b")}, Value: 3},
		{Op: OpAdd, Path: Path{Key("c")}, Value: 4},
	})
	testutil.AssertErrorContains(t, err, "patch 1")
	testutil.AssertEqual(t, "first patch applied", doc["a"], any(2))
	_, hasC := doc["c"]
	testutil.AssertEqual(t, "third patch skipped", hasC, false)
}

func TestRoundTrip(t *testing.T) {
	pairs := map[string]struct {
		old any
		new any
	}{
		"sample mutation": {
			old: sampleTree(),
			new: map[string]any{
				"tick": 5,
				"players": map[string]any{
					"p2": map[string]any{"x": 3, "y": 5, "name": "bo"},
					"p3": map[string]any{"x": 0, "y": 0},
				},
				"log":  []any{"start"},
				"meta": []any{"flattened"},
			},
		},
		"nested sequence shrink and grow": {
			old: map[string]any{"grid": []any{[]any{1, 2, 3}, []any{4}, []any{5, 6}}},
			new: map[string]any{"grid": []any{[]any{1}, []any{4, 7, 8}}},
		},
		"everything removed": {
			old: sampleTree(),
			new: map[string]any{},
		},
		"from empty": {
			old: map[string]any{},
			new: sampleTree(),
		},
	}

	for name, tt := range pairs {
		t.Run(name, func(t *testing.T) {
			assertRoundTrip(t, tt.old, tt.new)
		})
	}
}

func TestRoundTrip_Generated(t *testing.T) {
	src := rng.New(2024)
	for i := 0; i < 200; i++ {
		old := randomTree(src, 3)
		cur := randomTree(src, 3)
		t.Run(fmt.Sprintf("pair-%d", i), func(t *testing.T) {
			assertRoundTrip(t, old, cur)
		})
	}
}

func TestRoundTrip_OverWire(t *testing.T) {
	old := sampleTree()
	cur := Clone(old).(map[string]any)
	cur["players"].(map[string]any)["p1"].(map[string]any)["x"] = 10
	cur["log"] = append(cur["log"].([]any), "late")

	data, err := json.Marshal(Diff(old, cur))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var patches []Patch
	if err := json.Unmarshal(data, &patches); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A mirror decoded from JSON carries float64 numbers.
	var mirror any
	raw, _ := json.Marshal(old)
	if err := json.Unmarshal(raw, &mirror); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mirror, err = ApplyAll(mirror, patches)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !Equal(mirror, cur) {
		t.Errorf("mirror diverged: %v", Diff(cur, mirror))
	}
}

func TestPatch_JSONShape(t *testing.T) {
	tests := map[string]struct {
		patch Patch
		exp   string
	}{
		"replace with mixed path": {
			patch: Patch{Op: OpReplace, Path: Path{Key("log"), Index(2)}, Value: "x"},
			exp:   `{"op":"replace","path":["log",2],"value":"x"}`,
		},
		"add keeps null value": {
			patch: Patch{Op: OpAdd, Path: Path{Key("v")}},
			exp:   `{"op":"add","path":["v"],"value":null}`,
		},
		"remove omits value": {
			patch: Patch{Op: OpRemove, Path: Path{Key("players"), Key("p1")}, Value: 5},
			exp:   `{"op":"remove","path":["players","p1"]}`,
		},
		"root path": {
			patch: Patch{Op: OpReplace, Value: 1},
			exp:   `{"op":"replace","path":[],"value":1}`,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(tt.patch)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "json", string(data), tt.exp)
		})
	}
}

func TestPatch_UnmarshalRejects(t *testing.T) {
	tests := map[string]struct {
		data   string
		expErr string
	}{
		"unknown op":         {data: `{"op":"copy","path":["a"]}`, expErr: "unknown patch op"},
		"fractional index":   {data: `{"op":"add","path":[1.5],"value":1}`, expErr: "not an integer"},
		"object path member": {data: `{"op":"add","path":[{}],"value":1}`, expErr: "string or number"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var p Patch
			err := json.Unmarshal([]byte(tt.data), &p)
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func assertRoundTrip(t *testing.T, old, cur any) {
	t.Helper()
	base := Clone(old)
	got, err := ApplyAll(base, Diff(old, cur))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(cur, got); diff != "" {
		t.Errorf("round trip mismatch (-exp +got):\n%s", diff)
	}
}

func randomTree(src *rng.Source, depth int) map[string]any {
	out := map[string]any{}
	for n := src.Range(0, 5); n > 0; n-- {
		out[fmt.Sprintf("k%d", src.Range(0, 6))] = randomValue(src, depth-1)
	}
	return out
}

func randomValue(src *rng.Source, depth int) any {
	kind := src.Range(0, 6)
	if depth <= 0 {
		kind = src.Range(0, 4)
	}
	switch kind {
	case 0:
		return nil
	case 1:
		return src.Range(-3, 3)
	case 2:
		return src.Boolean()
	case 3:
		return fmt.Sprintf("s%d", src.Range(0, 3))
	case 4:
		seq := make([]any, src.Range(0, 4))
		for i := range seq {
			seq[i] = randomValue(src, depth-1)
		}
		return seq
	default:
		return randomTree(src, depth)
	}
}
