package gbdt

import (
	"math/rand/v2"
	"sort"
)

// SamplingStrategy draws the per-tree row and column subsets.
type SamplingStrategy struct {
	rng             *rand.Rand
	rowFraction     float64
	featureFraction float64
}

// NewSamplingStrategy creates a sampler seeded from params.Seed.
func NewSamplingStrategy(params TrainingParams) *SamplingStrategy {
	return &SamplingStrategy{
		rng:             rand.New(rand.NewPCG(params.Seed, params.Seed^0x9e3779b97f4a7c15)),
		rowFraction:     params.Subsample,
		featureFraction: params.ColsampleByTree,
	}
}

// SampleFeatures returns a sorted subset of feature indices for one tree.
func (s *SamplingStrategy) SampleFeatures(numFeatures int) []int {
	return s.sample(numFeatures, s.featureFraction)
}

// SampleInstances returns a sorted subset of row indices for one tree,
// drawn without replacement.
func (s *SamplingStrategy) SampleInstances(numInstances int) []int {
	return s.sample(numInstances, s.rowFraction)
}

func (s *SamplingStrategy) sample(n int, fraction float64) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	if fraction >= 1.0 || fraction <= 0 {
		return perm
	}

	numSample := int(float64(n) * fraction)
	if numSample < 1 {
		numSample = 1
	}
	if numSample > n {
		numSample = n
	}

	// partial Fisher-Yates
	for i := 0; i < numSample; i++ {
		j := i + s.rng.IntN(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:numSample]
	sort.Ints(out)
	return out
}

// RegularizationStrategy computes leaf weights and split gains under
// L1 (alpha) and L2 (lambda) penalties.
type RegularizationStrategy struct {
	lambdaL1       float64
	lambdaL2       float64
	minChildWeight float64
}

// NewRegularizationStrategy creates a new regularization strategy.
func NewRegularizationStrategy(params TrainingParams) *RegularizationStrategy {
	return &RegularizationStrategy{
		lambdaL1:       params.Alpha,
		lambdaL2:       params.Lambda,
		minChildWeight: params.MinChildWeight,
	}
}

// thresholdL1 soft-thresholds the gradient sum by alpha.
func (r *RegularizationStrategy) thresholdL1(g float64) float64 {
	switch {
	case g > r.lambdaL1:
		return g - r.lambdaL1
	case g < -r.lambdaL1:
		return g + r.lambdaL1
	default:
		return 0
	}
}

// LeafWeight is the optimal unshrunk leaf value -T(G)/(H+lambda).
func (r *RegularizationStrategy) LeafWeight(sumGrad, sumHess float64) float64 {
	if sumHess <= 0 || sumHess < r.minChildWeight {
		return 0
	}
	return -r.thresholdL1(sumGrad) / (sumHess + r.lambdaL2)
}

// Score is the structure score T(G)^2/(H+lambda) of a node.
func (r *RegularizationStrategy) Score(sumGrad, sumHess float64) float64 {
	denom := sumHess + r.lambdaL2
	if denom <= 0 {
		return 0
	}
	t := r.thresholdL1(sumGrad)
	return t * t / denom
}

// SplitGain is the loss reduction of splitting a parent into two children.
func (r *RegularizationStrategy) SplitGain(leftGrad, leftHess, rightGrad, rightHess float64) float64 {
	return r.Score(leftGrad, leftHess) + r.Score(rightGrad, rightHess) -
		r.Score(leftGrad+rightGrad, leftHess+rightHess)
}
