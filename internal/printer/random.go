package printer

import (
	"math/rand/v2"
	"sync"
)

// RandomSource drives consumption and fault injection.
type RandomSource interface {
	// Float64 returns a value in [0,1).
	Float64() float64
	// IntN returns a value in [0,n).
	IntN(n int) int
}

type seededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource returns a RandomSource seeded with seed. A zero seed
// draws one from the runtime.
func NewRandomSource(seed uint64) RandomSource {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &seededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *seededSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}
