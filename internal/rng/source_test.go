package rng

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestSource_Reproducible(t *testing.T) {
	a := New(42)
	b := New(42)

	for i := 0; i < 1000; i++ {
		va, vb := a.Next(), b.Next()
		if va != vb {
			t.Fatalf("draw %d: %v != %v", i, va, vb)
		}
		if va < 0 || va >= 1 {
			t.Fatalf("draw %d out of range: %v", i, va)
		}
	}
	testutil.AssertEqual(t, "calls", a.Calls(), uint64(1000))
	testutil.AssertEqual(t, "seed", a.Seed(), int64(42))
}

func TestSource_DifferentSeeds(t *testing.T) {
	a := New(1)
	b := New(2)

	same := 0
	for i := 0; i < 100; i++ {
		if a.Next() == b.Next() {
			same++
		}
	}
	if same == 100 {
		t.Errorf("different seeds produced identical sequences")
	}
}

func TestSource_MixedCallSequence(t *testing.T) {
	draw := func(s *Source) []float64 {
		seq := []int{1, 2, 3, 4, 5, 6, 7, 8}
		Shuffle(s, seq)
		c, _ := Choice(s, []string{"a", "b", "c"})
		out := []float64{float64(s.Range(-5, 5)), s.Float(1.5, 2.5)}
		if s.Boolean() {
			out = append(out, 1)
		}
		for _, v := range seq {
			out = append(out, float64(v))
		}
		return append(out, float64(len(c)))
	}

	a := draw(New(7))
	b := draw(New(7))
	testutil.AssertEqual(t, "length", len(a), len(b))
	for i := range a {
		testutil.AssertEqual(t, "value", a[i], b[i])
	}
}

func TestSource_Range(t *testing.T) {
	tests := map[string]struct {
		min int
		max int
	}{
		"positive span": {min: 0, max: 10},
		"negative span": {min: -10, max: -3},
		"single value":  {min: 4, max: 5},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := New(99)
			for i := 0; i < 500; i++ {
				v := s.Range(tt.min, tt.max)
				if v < tt.min || v >= tt.max {
					t.Fatalf("value %d outside [%d,%d)", v, tt.min, tt.max)
				}
			}
		})
	}

	s := New(1)
	testutil.AssertEqual(t, "empty range", s.Range(3, 3), 3)
	testutil.AssertEqual(t, "inverted range", s.Range(5, 1), 5)
}

func TestSource_Float(t *testing.T) {
	s := New(3)
	for i := 0; i < 500; i++ {
		v := s.Float(-1, 1)
		if v < -1 || v >= 1 {
			t.Fatalf("value %v outside [-1,1)", v)
		}
	}
}

func TestSource_Bool(t *testing.T) {
	s := New(5)
	for i := 0; i < 100; i++ {
		if s.Bool(0) {
			t.Fatal("Bool(0) returned true")
		}
		if !s.Bool(1) {
			t.Fatal("Bool(1) returned false")
		}
	}
}

func TestChoice(t *testing.T) {
	s := New(11)

	_, ok := Choice(s, []int{})
	testutil.AssertEqual(t, "empty ok", ok, false)
	testutil.AssertEqual(t, "empty draws nothing", s.Calls(), uint64(0))

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		v, ok := Choice(s, []string{"x", "y", "z"})
		testutil.AssertEqual(t, "ok", ok, true)
		seen[v] = true
	}
	testutil.AssertEqual(t, "all chosen", len(seen), 3)
}

func TestShuffle_Permutation(t *testing.T) {
	s := New(13)
	seq := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	Shuffle(s, seq)

	seen := make([]bool, len(seq))
	for _, v := range seq {
		if seen[v] {
			t.Fatalf("duplicate %d after shuffle", v)
		}
		seen[v] = true
	}
	testutil.AssertEqual(t, "draws", s.Calls(), uint64(len(seq)-1))
}
