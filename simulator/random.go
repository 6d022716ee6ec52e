package simulator

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// RandomGenerator is a seeded random source shared by every component of a
// simulation. It is safe for concurrent use.
type RandomGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomGenerator creates a generator. A zero seed uses a time-based seed.
func NewRandomGenerator(seed int64) *RandomGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomGenerator{rng: rand.New(rand.NewSource(seed))}
}

// Intn returns a uniform int in [0, n).
func (g *RandomGenerator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

// Float64 returns a uniform float in [0, 1).
func (g *RandomGenerator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// Int64Range returns a uniform value in [lo, hi].
func (g *RandomGenerator) Int64Range(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + g.rng.Int63n(hi-lo+1)
}

// Float64Range returns a uniform value in [lo, hi).
func (g *RandomGenerator) Float64Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + g.Float64()*(hi-lo)
}

// Jittered returns base moved by a uniform relative offset in
// [-jitter, +jitter]. A zero jitter returns base unchanged.
func (g *RandomGenerator) Jittered(base int64, jitter float64) int64 {
	if jitter <= 0 {
		return base
	}
	offset := g.Float64Range(-jitter, jitter)
	return int64(float64(base) * (1 + offset))
}

// Sample returns k distinct indexes drawn uniformly from [0, n), in
// ascending order. If k >= n every index is returned.
func (g *RandomGenerator) Sample(n, k int) []int {
	if k >= n {
		k = n
	}
	g.mu.Lock()
	perm := g.rng.Perm(n)
	g.mu.Unlock()
	picked := perm[:k]
	sort.Ints(picked)
	return picked
}
