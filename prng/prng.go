// Package prng gives each cache instance its own deterministic random
// source, so that warm-up lotteries and randomized replacement policies
// stay reproducible under lockstep simulation regardless of what else in
// the process is drawing random numbers.
package prng

import (
	"math/rand"
	"sync/atomic"
)

// defaultSeedCounter hands out distinct default seeds to caches that are
// not given an explicit one, so two caches constructed without a seed
// still diverge instead of shadowing each other.
var defaultSeedCounter int64 = 0xA53C9F17

// NextDefaultSeed returns a fresh seed for a cache that was not given an
// explicit one. It is monotonically derived, not time-based, so a whole
// simulation run constructed in the same order reproduces the same seeds.
func NextDefaultSeed() int64 {
	return atomic.AddInt64(&defaultSeedCounter, 0x9E3779B9)
}

// Source is a private, non-shared random generator. Unlike the
// install/restore global-generator dance of the C++ original, a Source is
// simply called directly — each cache and each policy instance that needs
// randomness owns one.
type Source struct {
	rng *rand.Rand
}

// New constructs a Source seeded deterministically from seed.
func New(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Intn returns a pseudo-random number in [0, n).
func (s *Source) Intn(n int) int {
	return s.rng.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0, 1.0), used for the
// warm-up lottery's percentage draw.
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Uint64 returns a pseudo-random 64-bit word.
func (s *Source) Uint64() uint64 {
	return s.rng.Uint64()
}
