package market

import (
	"math/rand"
	"sync"
)

// Rand is the source of uniform samples in [0,1) used by the random walk.
// Implementations must be safe for concurrent use.
type Rand interface {
	Float64() float64
}

// entropyRand draws from the auto-seeded global math/rand source.
type entropyRand struct{}

func (entropyRand) Float64() float64 { return rand.Float64() }

// DefaultRand returns a Rand backed by process entropy.
func DefaultRand() Rand { return entropyRand{} }

// SeededRand is a reproducible Rand for tests and replays.
type SeededRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewSeededRand(seed int64) *SeededRand {
	return &SeededRand{r: rand.New(rand.NewSource(seed))}
}

func (s *SeededRand) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}
