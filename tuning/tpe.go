package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// TPEConfig holds the tree-structured Parzen estimator settings.
type TPEConfig struct {
	// NStartupTrials completed trials are drawn uniformly before the model is used.
	NStartupTrials int
	// NEICandidates is the number of draws from the good-trial density per parameter.
	NEICandidates int
	// Gamma returns how many of n completed trials count as good.
	Gamma func(n int) int
	// PriorWeight is the weight of the wide prior component.
	PriorWeight float64
	// ConsiderMagicClip floors bandwidths at range/min(100, n+2).
	ConsiderMagicClip bool
	// Maximize ranks higher scores as better.
	Maximize bool
}

// DefaultGamma is min(ceil(0.1 n), 25).
func DefaultGamma(n int) int {
	return min(int(math.Ceil(0.1*float64(n))), 25)
}

// DefaultTPEConfig returns the standard TPE settings for a maximised score.
func DefaultTPEConfig() TPEConfig {
	return TPEConfig{
		NStartupTrials:    10,
		NEICandidates:     24,
		Gamma:             DefaultGamma,
		PriorWeight:       1.0,
		ConsiderMagicClip: true,
		Maximize:          true,
	}
}

type observation struct {
	number int
	score  float64
	config Configuration
}

// TPESampler is a univariate tree-structured Parzen estimator. Each parameter
// is proposed independently by maximising l(x)/g(x), where l and g are
// Parzen densities fitted to the good and the remaining completed trials.
// Failed trials are not modelled.
type TPESampler struct {
	cfg          TPEConfig
	rng          *rand.Rand
	observations []observation
}

// NewTPESampler creates a seeded TPE sampler with the default settings.
func NewTPESampler(seed uint64) *TPESampler {
	return NewTPESamplerWithConfig(seed, DefaultTPEConfig())
}

// NewTPESamplerWithConfig creates a seeded TPE sampler.
func NewTPESamplerWithConfig(seed uint64, cfg TPEConfig) *TPESampler {
	if cfg.Gamma == nil {
		cfg.Gamma = DefaultGamma
	}
	if cfg.NEICandidates < 1 {
		cfg.NEICandidates = 1
	}
	if cfg.PriorWeight <= 0 {
		cfg.PriorWeight = 1
	}
	return &TPESampler{cfg: cfg, rng: newRNG(seed)}
}

// Name implements Sampler.
func (s *TPESampler) Name() string { return "tpe" }

// Observe implements Sampler.
func (s *TPESampler) Observe(result TrialResult) {
	if result.State != TrialComplete || math.IsNaN(result.Score) {
		return
	}
	s.observations = append(s.observations, observation{
		number: result.Number,
		score:  result.Score,
		config: result.Config,
	})
}

// NumObservations returns the number of completed trials in the model.
func (s *TPESampler) NumObservations() int {
	return len(s.observations)
}

// InStartup reports whether the next proposal is a uniform startup draw.
func (s *TPESampler) InStartup() bool {
	return len(s.observations) < s.cfg.NStartupTrials || len(s.observations) < 2
}

// Sample implements Sampler.
func (s *TPESampler) Sample(space *Space) (Configuration, error) {
	if s.InStartup() {
		return space.Sample(s.rng), nil
	}

	below, above := s.splitObservations()
	values := make(map[string]interface{}, space.Len())
	for _, p := range space.params {
		v, err := s.sampleParam(p, below, above)
		if err != nil {
			return Configuration{}, err
		}
		values[p.Name] = v
	}
	return Configuration{values: values}, nil
}

// splitObservations partitions completed trials into the best gamma(n) and
// the rest. Both groups stay in trial order so recency weights apply.
func (s *TPESampler) splitObservations() (below, above []observation) {
	n := len(s.observations)
	nBelow := s.cfg.Gamma(n)
	if nBelow < 1 {
		nBelow = 1
	}
	if nBelow >= n {
		nBelow = n - 1
	}

	ranked := make([]int, n)
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		sa, sb := s.observations[ranked[a]].score, s.observations[ranked[b]].score
		if s.cfg.Maximize {
			return sa > sb
		}
		return sa < sb
	})
	isBelow := make([]bool, n)
	for _, idx := range ranked[:nBelow] {
		isBelow[idx] = true
	}
	for i, o := range s.observations {
		if isBelow[i] {
			below = append(below, o)
		} else {
			above = append(above, o)
		}
	}
	return below, above
}

func (s *TPESampler) sampleParam(p Param, below, above []observation) (interface{}, error) {
	switch d := p.Distribution.(type) {
	case numericDistribution:
		low, high := d.internalRange()
		l := newParzenEstimator(numericObs(p.Name, d, below), low, high, d.step(), s.cfg.PriorWeight, s.cfg.ConsiderMagicClip)
		g := newParzenEstimator(numericObs(p.Name, d, above), low, high, d.step(), s.cfg.PriorWeight, s.cfg.ConsiderMagicClip)

		candidates := l.sample(s.rng, s.cfg.NEICandidates)
		best, bestScore := 0, math.Inf(-1)
		for k, x := range candidates {
			if d.step() > 0 {
				// score the integer the candidate rounds to
				x = d.toInternal(d.fromInternal(x))
				candidates[k] = x
			}
			score := l.logPdf(x) - g.logPdf(x)
			if score > bestScore {
				best, bestScore = k, score
			}
		}
		return d.fromInternal(candidates[best]), nil

	case CategoricalDistribution:
		l := newCategoricalEstimator(categoricalObs(p.Name, d, below), len(d.Choices), s.cfg.PriorWeight)
		g := newCategoricalEstimator(categoricalObs(p.Name, d, above), len(d.Choices), s.cfg.PriorWeight)

		candidates := l.sample(s.rng, s.cfg.NEICandidates)
		best, bestScore := candidates[0], math.Inf(-1)
		for _, c := range candidates {
			if score := l.logPdf(c) - g.logPdf(c); score > bestScore {
				best, bestScore = c, score
			}
		}
		return d.Choices[best], nil
	}
	return nil, scigoErrors.NewValidationError(p.Name, "unsupported distribution", p.Distribution)
}

func numericObs(name string, d numericDistribution, obs []observation) []float64 {
	out := make([]float64, 0, len(obs))
	for _, o := range obs {
		if v, ok := o.config.values[name]; ok && d.Contains(v) {
			out = append(out, d.toInternal(v))
		}
	}
	return out
}

func categoricalObs(name string, d CategoricalDistribution, obs []observation) []int {
	out := make([]int, 0, len(obs))
	for _, o := range obs {
		if idx := d.index(o.config.values[name]); idx >= 0 {
			out = append(out, idx)
		}
	}
	return out
}
