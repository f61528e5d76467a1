package gbdt

import (
	"math"
)

// ObjectiveFunction supplies first and second order gradients of a loss
// with respect to the raw margin.
type ObjectiveFunction interface {
	// Gradient returns dL/dmargin for one sample.
	Gradient(margin, target float64) float64
	// Hessian returns d²L/dmargin² for one sample.
	Hessian(margin, target float64) float64
	// Loss returns the per-sample loss.
	Loss(margin, target float64) float64
	// InitScore returns the constant starting margin.
	InitScore(targets []float64) float64
	// Transform maps a margin to the output scale.
	Transform(margin float64) float64
	Name() string
}

// hessEps keeps leaf denominators away from zero on saturated samples.
const hessEps = 1e-16

// BinaryLogistic is the logistic loss for 0/1 targets. Positive samples are
// weighted by ScalePosWeight in both gradient and hessian.
type BinaryLogistic struct {
	ScalePosWeight float64
}

// NewBinaryLogistic creates the objective. Non-positive weights fall back to 1.
func NewBinaryLogistic(scalePosWeight float64) *BinaryLogistic {
	if scalePosWeight <= 0 {
		scalePosWeight = 1
	}
	return &BinaryLogistic{ScalePosWeight: scalePosWeight}
}

func (b *BinaryLogistic) weight(target float64) float64 {
	if target == 1 {
		return b.ScalePosWeight
	}
	return 1
}

// Gradient is (p - y) * w.
func (b *BinaryLogistic) Gradient(margin, target float64) float64 {
	return (sigmoid(margin) - target) * b.weight(target)
}

// Hessian is p(1-p) * w.
func (b *BinaryLogistic) Hessian(margin, target float64) float64 {
	p := sigmoid(margin)
	return math.Max(p*(1-p), hessEps) * b.weight(target)
}

// Loss is the unweighted cross entropy, the quantity reported as logloss.
func (b *BinaryLogistic) Loss(margin, target float64) float64 {
	// log(1+exp(m)) - y*m, computed without overflow
	return softplus(margin) - target*margin
}

// InitScore is the log-odds of the weighted positive rate.
func (b *BinaryLogistic) InitScore(targets []float64) float64 {
	pos, total := 0.0, 0.0
	for _, y := range targets {
		w := b.weight(y)
		total += w
		if y == 1 {
			pos += w
		}
	}
	if total == 0 || pos == 0 || pos == total {
		return 0
	}
	p := pos / total
	return math.Log(p / (1 - p))
}

// Transform applies the sigmoid.
func (b *BinaryLogistic) Transform(margin float64) float64 {
	return sigmoid(margin)
}

// Name returns the xgboost objective name.
func (b *BinaryLogistic) Name() string { return "binary:logistic" }

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}
