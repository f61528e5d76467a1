package tuning

import (
	"math/rand/v2"
)

// Sampler proposes configurations and learns from finished trials. A sampler
// is owned by exactly one Study and is not safe for concurrent use.
type Sampler interface {
	// Sample proposes the next configuration to evaluate.
	Sample(space *Space) (Configuration, error)
	// Observe records the outcome of a finished trial.
	Observe(result TrialResult)
	// Name identifies the sampler in logs and study summaries.
	Name() string
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d))
}

// RandomSampler draws every configuration uniformly from the space.
type RandomSampler struct {
	rng *rand.Rand
}

// NewRandomSampler creates a seeded uniform sampler.
func NewRandomSampler(seed uint64) *RandomSampler {
	return &RandomSampler{rng: newRNG(seed)}
}

// Sample implements Sampler.
func (s *RandomSampler) Sample(space *Space) (Configuration, error) {
	return space.Sample(s.rng), nil
}

// Observe implements Sampler; random search keeps no model.
func (s *RandomSampler) Observe(TrialResult) {}

// Name implements Sampler.
func (s *RandomSampler) Name() string { return "random" }
