// Package rng provides a seeded random source whose output depends only on the
// seed and the sequence of calls made against it.
package rng

import (
	"github.com/seehuhn/mt19937"
)

// Source is a deterministic random generator backed by a 64-bit Mersenne Twister.
// It is not safe for concurrent use.
type Source struct {
	mt    *mt19937.MT19937
	seed  int64
	calls uint64
}

// New returns a Source seeded with seed.
func New(seed int64) *Source {
	mt := mt19937.New()
	mt.Seed(seed)
	return &Source{
		mt:   mt,
		seed: seed,
	}
}

// Seed returns the seed the source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Calls returns how many values have been drawn from the source.
func (s *Source) Calls() uint64 {
	return s.calls
}

// Next returns a value in [0,1).
func (s *Source) Next() float64 {
	s.calls++
	// Top 53 bits fill a float64 mantissa exactly.
	return float64(s.mt.Uint64()>>11) / (1 << 53)
}

// Range returns an integer in [min,max). When max <= min it returns min.
func (s *Source) Range(min, max int) int {
	if max <= min {
		return min
	}
	return min + int(s.Next()*float64(max-min))
}

// Float returns a value in [min,max).
func (s *Source) Float(min, max float64) float64 {
	return min + s.Next()*(max-min)
}

// Bool returns true with probability p.
func (s *Source) Bool(p float64) bool {
	return s.Next() < p
}

// Boolean is a fair coin flip.
func (s *Source) Boolean() bool {
	return s.Bool(0.5)
}

// Choice returns a random element of seq, or false when seq is empty.
func Choice[T any](s *Source, seq []T) (T, bool) {
	if len(seq) == 0 {
		var zero T
		return zero, false
	}
	return seq[s.Range(0, len(seq))], true
}

// Shuffle permutes seq in place using Fisher-Yates.
func Shuffle[T any](s *Source, seq []T) {
	for i := len(seq) - 1; i > 0; i-- {
		j := s.Range(0, i+1)
		seq[i], seq[j] = seq[j], seq[i]
	}
}
