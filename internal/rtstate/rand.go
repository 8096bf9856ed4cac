package rtstate

import "math/rand"

// seededRand adapts the standard library's math/rand.Rand to heap.Rand.
// One instance is owned per seed (spec.md §5: "independent runtime state
// per seed"); the same seed must always drive the same sequence of draws,
// which math/rand.NewSource(seed) guarantees (spec.md §4.6 Determinism).
type seededRand struct{ r *rand.Rand }

func newSeededRand(seed int64) *seededRand {
	return &seededRand{r: rand.New(rand.NewSource(seed))}
}

func (s *seededRand) Uint64() uint64   { return s.r.Uint64() }
func (s *seededRand) Intn(n int) int   { return s.r.Intn(n) }
func (s *seededRand) Float64() float64 { return s.r.Float64() }
