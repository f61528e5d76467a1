package tuning

import (
	"math/rand/v2"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// Hyperparameter names of the booster search space.
const (
	ParamTreeCount       = "tree_count"
	ParamMaxDepth        = "max_depth"
	ParamLearningRate    = "learning_rate"
	ParamRowSubsample    = "row_subsample"
	ParamColumnSubsample = "column_subsample"
	ParamMinSplitGain    = "min_split_gain"
	ParamL2Reg           = "l2_reg"
	ParamL1Reg           = "l1_reg"
)

// Param is one named dimension of a Space.
type Param struct {
	Name         string
	Distribution Distribution
}

// Bound describes a dimension for reporting.
type Bound struct {
	Name string      `json:"name"`
	Kind string      `json:"kind"`
	Low  interface{} `json:"low,omitempty"`
	High interface{} `json:"high,omitempty"`
	Log  bool        `json:"log,omitempty"`
}

// Space is an ordered, immutable set of hyperparameter domains.
type Space struct {
	params []Param
	index  map[string]int
}

// NewSpace creates a space. Names must be unique and numeric ranges non-empty.
func NewSpace(params ...Param) (*Space, error) {
	s := &Space{params: make([]Param, 0, len(params)), index: make(map[string]int, len(params))}
	for _, p := range params {
		if p.Name == "" {
			return nil, scigoErrors.NewValidationError("name", "parameter name must not be empty", p.Name)
		}
		if _, dup := s.index[p.Name]; dup {
			return nil, scigoErrors.NewValidationError(p.Name, "duplicate parameter name", p.Name)
		}
		switch d := p.Distribution.(type) {
		case IntDistribution:
			if !d.Valid() || (d.Log && d.Min < 1) {
				return nil, scigoErrors.NewValidationError(p.Name, "invalid integer range", d.Range)
			}
		case FloatDistribution:
			if !d.Valid() || (d.Log && d.Min <= 0) {
				return nil, scigoErrors.NewValidationError(p.Name, "invalid real range", d.Range)
			}
		case CategoricalDistribution:
			if len(d.Choices) == 0 {
				return nil, scigoErrors.NewValidationError(p.Name, "categorical parameter needs at least one choice", d.Choices)
			}
		default:
			return nil, scigoErrors.NewValidationError(p.Name, "unsupported distribution", p.Distribution)
		}
		s.index[p.Name] = len(s.params)
		s.params = append(s.params, p)
	}
	return s, nil
}

// MustNewSpace is NewSpace that panics on error, for static declarations.
func MustNewSpace(params ...Param) *Space {
	s, err := NewSpace(params...)
	if err != nil {
		panic(err)
	}
	return s
}

// BoosterSpace returns the eight-dimensional search space of the booster.
func BoosterSpace() *Space {
	return MustNewSpace(
		Param{ParamTreeCount, NewIntDistribution(100, 1000, false)},
		Param{ParamMaxDepth, NewIntDistribution(3, 10, false)},
		Param{ParamLearningRate, NewFloatDistribution(0.01, 0.30, false)},
		Param{ParamRowSubsample, NewFloatDistribution(0.6, 1.0, false)},
		Param{ParamColumnSubsample, NewFloatDistribution(0.6, 1.0, false)},
		Param{ParamMinSplitGain, NewFloatDistribution(0, 5, false)},
		Param{ParamL2Reg, NewFloatDistribution(1, 10, false)},
		Param{ParamL1Reg, NewFloatDistribution(0, 5, false)},
	)
}

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.params) }

// Params returns the dimensions in declaration order.
func (s *Space) Params() []Param {
	return append([]Param(nil), s.params...)
}

// Names returns the parameter names in declaration order.
func (s *Space) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// Distribution returns the domain of name.
func (s *Space) Distribution(name string) (Distribution, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.params[i].Distribution, true
}

// Bounds describes every dimension.
func (s *Space) Bounds() []Bound {
	out := make([]Bound, len(s.params))
	for i, p := range s.params {
		lo, hi := p.Distribution.Bounds()
		b := Bound{Name: p.Name, Kind: p.Distribution.Kind(), Low: lo, High: hi}
		switch d := p.Distribution.(type) {
		case IntDistribution:
			b.Log = d.Log
		case FloatDistribution:
			b.Log = d.Log
		}
		out[i] = b
	}
	return out
}

// Sample draws every dimension independently and uniformly.
func (s *Space) Sample(rng *rand.Rand) Configuration {
	values := make(map[string]interface{}, len(s.params))
	for _, p := range s.params {
		values[p.Name] = p.Distribution.Sample(rng)
	}
	return Configuration{values: values}
}

// Validate checks that cfg assigns an in-domain value to every dimension and
// nothing else.
func (s *Space) Validate(cfg Configuration) error {
	for _, p := range s.params {
		v, ok := cfg.values[p.Name]
		lo, hi := p.Distribution.Bounds()
		if !ok {
			return scigoErrors.NewConfigurationDomainError(p.Name, nil, lo, hi)
		}
		if !p.Distribution.Contains(v) {
			return scigoErrors.NewConfigurationDomainError(p.Name, v, lo, hi)
		}
	}
	for name, v := range cfg.values {
		if _, ok := s.index[name]; !ok {
			return scigoErrors.NewConfigurationDomainError(name, v, nil, nil)
		}
	}
	return nil
}
