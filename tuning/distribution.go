package tuning

import (
	"math"
	"math/rand/v2"
	"strconv"

	"golang.org/x/exp/constraints"
)

// Range is an inclusive numeric interval.
type Range[T constraints.Integer | constraints.Float] struct {
	Min T
	Max T
}

// Contains reports whether v lies in [Min, Max].
func (r Range[T]) Contains(v T) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp returns v limited to [Min, Max].
func (r Range[T]) Clamp(v T) T {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Width returns Max - Min.
func (r Range[T]) Width() T {
	return r.Max - r.Min
}

// Valid reports whether Min <= Max.
func (r Range[T]) Valid() bool {
	return r.Min <= r.Max
}

// Distribution describes the domain of one hyperparameter.
type Distribution interface {
	// Contains reports whether v is a legal value (type and bounds).
	Contains(v interface{}) bool
	// Sample draws a uniform value (log-uniform when Log is set).
	Sample(rng *rand.Rand) interface{}
	// Bounds returns the numeric bounds for reporting.
	Bounds() (low, high interface{})
	// Kind names the distribution for serialization.
	Kind() string
}

// numericDistribution is implemented by distributions the Parzen estimator
// can model on a real line.
type numericDistribution interface {
	Distribution
	// internalRange returns the modelling interval, in log space when Log is set.
	internalRange() (low, high float64)
	toInternal(v interface{}) float64
	fromInternal(x float64) interface{}
	// step is 1 for integers and 0 for continuous values.
	step() float64
}

// IntDistribution is an integer interval [Low, High].
type IntDistribution struct {
	Range[int]
	Log bool
}

// NewIntDistribution creates an integer distribution.
func NewIntDistribution(low, high int, log bool) IntDistribution {
	return IntDistribution{Range: Range[int]{Min: low, Max: high}, Log: log}
}

// Contains implements Distribution.
func (d IntDistribution) Contains(v interface{}) bool {
	i, ok := v.(int)
	return ok && d.Range.Contains(i)
}

// Sample implements Distribution.
func (d IntDistribution) Sample(rng *rand.Rand) interface{} {
	if d.Log {
		lo, hi := d.internalRange()
		return d.fromInternal(lo + rng.Float64()*(hi-lo))
	}
	return d.Min + rng.IntN(d.Max-d.Min+1)
}

// Bounds implements Distribution.
func (d IntDistribution) Bounds() (interface{}, interface{}) { return d.Min, d.Max }

// Kind implements Distribution.
func (d IntDistribution) Kind() string { return "int" }

func (d IntDistribution) internalRange() (float64, float64) {
	lo, hi := float64(d.Min)-0.5, float64(d.Max)+0.5
	if d.Log {
		return math.Log(math.Max(lo, 0.5)), math.Log(hi)
	}
	return lo, hi
}

func (d IntDistribution) toInternal(v interface{}) float64 {
	x := float64(v.(int))
	if d.Log {
		return math.Log(x)
	}
	return x
}

func (d IntDistribution) fromInternal(x float64) interface{} {
	if d.Log {
		x = math.Exp(x)
	}
	return d.Clamp(int(math.Round(x)))
}

func (d IntDistribution) step() float64 { return 1 }

// FloatDistribution is a real interval [Low, High].
type FloatDistribution struct {
	Range[float64]
	Log bool
}

// NewFloatDistribution creates a real-valued distribution.
func NewFloatDistribution(low, high float64, log bool) FloatDistribution {
	return FloatDistribution{Range: Range[float64]{Min: low, Max: high}, Log: log}
}

// Contains implements Distribution.
func (d FloatDistribution) Contains(v interface{}) bool {
	f, ok := v.(float64)
	return ok && !math.IsNaN(f) && d.Range.Contains(f)
}

// Sample implements Distribution.
func (d FloatDistribution) Sample(rng *rand.Rand) interface{} {
	lo, hi := d.internalRange()
	return d.fromInternal(lo + rng.Float64()*(hi-lo))
}

// Bounds implements Distribution.
func (d FloatDistribution) Bounds() (interface{}, interface{}) { return d.Min, d.Max }

// Kind implements Distribution.
func (d FloatDistribution) Kind() string { return "float" }

func (d FloatDistribution) internalRange() (float64, float64) {
	if d.Log {
		return math.Log(d.Min), math.Log(d.Max)
	}
	return d.Min, d.Max
}

func (d FloatDistribution) toInternal(v interface{}) float64 {
	x := v.(float64)
	if d.Log {
		return math.Log(x)
	}
	return x
}

func (d FloatDistribution) fromInternal(x float64) interface{} {
	if d.Log {
		x = math.Exp(x)
	}
	return d.Clamp(x)
}

func (d FloatDistribution) step() float64 { return 0 }

// CategoricalDistribution is a finite set of string choices.
type CategoricalDistribution struct {
	Choices []string
}

// NewCategoricalDistribution creates a categorical distribution.
func NewCategoricalDistribution(choices ...string) CategoricalDistribution {
	return CategoricalDistribution{Choices: append([]string(nil), choices...)}
}

// Contains implements Distribution.
func (d CategoricalDistribution) Contains(v interface{}) bool {
	return d.index(v) >= 0
}

// Sample implements Distribution.
func (d CategoricalDistribution) Sample(rng *rand.Rand) interface{} {
	return d.Choices[rng.IntN(len(d.Choices))]
}

// Bounds implements Distribution.
func (d CategoricalDistribution) Bounds() (interface{}, interface{}) { return nil, nil }

// Kind implements Distribution.
func (d CategoricalDistribution) Kind() string { return "categorical" }

func (d CategoricalDistribution) index(v interface{}) int {
	s, ok := v.(string)
	if !ok {
		return -1
	}
	for i, c := range d.Choices {
		if c == s {
			return i
		}
	}
	return -1
}

// formatValue renders a configuration value for logs and errors.
func formatValue(v interface{}) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return x
	default:
		return "<invalid>"
	}
}
