package sim

import "math/rand/v2"

// Rand is the source of randomness threaded through nodes, links and the
// engine. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	// Float64 returns a uniform number in [0, 1).
	Float64() float64

	// IntN returns a uniform number in [0, n). It panics if n <= 0.
	IntN(n int) int
}

// NewRand creates a PCG-backed generator. Two generators created with the
// same seed produce the same sequence.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
