package tuning

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxFlatWeights is the number of most recent observations that keep full
// weight; older ones are ramped down linearly.
const maxFlatWeights = 25

// defaultWeights returns observation weights in trial order.
func defaultWeights(n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	if n < maxFlatWeights {
		floats.AddConst(1, w)
		return w
	}
	ramp := n - maxFlatWeights
	for i := 0; i < ramp; i++ {
		// linspace(1/n, 1, ramp)
		if ramp == 1 {
			w[i] = 1.0 / float64(n)
		} else {
			w[i] = 1.0/float64(n) + (1-1.0/float64(n))*float64(i)/float64(ramp-1)
		}
	}
	for i := ramp; i < n; i++ {
		w[i] = 1
	}
	return w
}

// parzenEstimator is a truncated gaussian mixture over one numeric dimension
// with one component per observation plus a wide prior component.
type parzenEstimator struct {
	low, high float64
	step      float64
	mus       []float64
	sigmas    []float64
	logW      []float64
}

func newParzenEstimator(obs []float64, low, high, step, priorWeight float64, magicClip bool) *parzenEstimator {
	n := len(obs)
	pe := &parzenEstimator{low: low, high: high, step: step}

	mus := append([]float64(nil), obs...)
	sigmas := make([]float64, n)
	if n > 0 {
		order := make([]int, n)
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return mus[order[a]] < mus[order[b]] })

		withEnds := make([]float64, n+2)
		withEnds[0] = low
		for k, idx := range order {
			withEnds[k+1] = mus[idx]
		}
		withEnds[n+1] = high

		for k, idx := range order {
			left := withEnds[k+1] - withEnds[k]
			right := withEnds[k+2] - withEnds[k+1]
			sigmas[idx] = math.Max(left, right)
		}
		if n >= 2 {
			// endpoints are not neighbours of the extreme observations
			sigmas[order[0]] = withEnds[2] - withEnds[1]
			sigmas[order[n-1]] = withEnds[n] - withEnds[n-1]
		}

		maxSigma := high - low
		minSigma := 1e-12
		if magicClip {
			minSigma = (high - low) / math.Min(100, 1+float64(n+1))
		}
		for i := range sigmas {
			sigmas[i] = math.Min(math.Max(sigmas[i], minSigma), maxSigma)
		}
	}

	weights := defaultWeights(n)
	pe.mus = append(mus, 0.5*(low+high))
	pe.sigmas = append(sigmas, high-low)
	weights = append(weights, priorWeight)

	total := floats.Sum(weights)
	pe.logW = make([]float64, len(weights))
	for i, w := range weights {
		pe.logW[i] = math.Log(w / total)
	}
	return pe
}

// sample draws n values from the mixture, each inside [low, high].
func (pe *parzenEstimator) sample(rng *rand.Rand, n int) []float64 {
	weights := make([]float64, len(pe.logW))
	for i, lw := range pe.logW {
		weights[i] = math.Exp(lw)
	}
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		c := pickWeighted(rng, weights)
		out[k] = truncatedNormalSample(rng, pe.mus[c], pe.sigmas[c], pe.low, pe.high)
	}
	return out
}

// logPdf returns the log density (log mass for discrete steps) of x.
func (pe *parzenEstimator) logPdf(x float64) float64 {
	terms := make([]float64, len(pe.mus))
	for i := range pe.mus {
		mu, sigma := pe.mus[i], pe.sigmas[i]
		norm := distuv.Normal{Mu: mu, Sigma: sigma}
		z := norm.CDF(pe.high) - norm.CDF(pe.low)
		if z <= 0 {
			z = 1e-300
		}
		var p float64
		if pe.step > 0 {
			lo := math.Max(x-pe.step/2, pe.low)
			hi := math.Min(x+pe.step/2, pe.high)
			p = math.Log(math.Max(norm.CDF(hi)-norm.CDF(lo), 1e-300))
		} else {
			p = norm.LogProb(x)
		}
		terms[i] = pe.logW[i] + p - math.Log(z)
	}
	return floats.LogSumExp(terms)
}

func pickWeighted(rng *rand.Rand, weights []float64) int {
	u := rng.Float64() * floats.Sum(weights)
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

// truncatedNormalSample draws from N(mu, sigma) restricted to [low, high] by
// inverse-CDF sampling.
func truncatedNormalSample(rng *rand.Rand, mu, sigma, low, high float64) float64 {
	unit := distuv.UnitNormal
	a := unit.CDF((low - mu) / sigma)
	b := unit.CDF((high - mu) / sigma)
	if b-a < 1e-12 {
		// all mass sits beyond one bound
		if mu < low {
			return low
		}
		if mu > high {
			return high
		}
		return mu
	}
	u := a + rng.Float64()*(b-a)
	u = math.Min(math.Max(u, 1e-15), 1-1e-15)
	x := mu + sigma*unit.Quantile(u)
	return math.Min(math.Max(x, low), high)
}

// categoricalEstimator is the Parzen estimator of a categorical dimension.
type categoricalEstimator struct {
	probs []float64
}

func newCategoricalEstimator(obs []int, nChoices int, priorWeight float64) *categoricalEstimator {
	weights := defaultWeights(len(obs))
	probs := make([]float64, nChoices)
	total := 0.0
	for k, c := range obs {
		// each observation is a component: prior mass spread plus a point at c
		rowTotal := priorWeight + 1
		for j := range probs {
			share := priorWeight / float64(nChoices)
			if j == c {
				share++
			}
			probs[j] += weights[k] * share / rowTotal
		}
		total += weights[k]
	}
	// prior component
	for j := range probs {
		probs[j] += priorWeight / float64(nChoices)
	}
	total += priorWeight
	floats.Scale(1/total, probs)
	return &categoricalEstimator{probs: probs}
}

func (ce *categoricalEstimator) sample(rng *rand.Rand, n int) []int {
	out := make([]int, n)
	for k := range out {
		out[k] = pickWeighted(rng, ce.probs)
	}
	return out
}

func (ce *categoricalEstimator) logPdf(c int) float64 {
	return math.Log(math.Max(ce.probs[c], 1e-300))
}
