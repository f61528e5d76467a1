package pipeline

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/tuning"
)

// twoClusters returns n rows of f features where positives (a posRate
// share) are centred at +sep and negatives at -sep, unit variance.
func twoClusters(n, f int, posRate, sep float64, seed uint64) (*mat.Dense, *mat.VecDense) {
	r := rand.New(rand.NewPCG(seed, seed+1))
	X := mat.NewDense(n, f, nil)
	y := mat.NewVecDense(n, nil)
	nPos := int(float64(n) * posRate)
	for i := 0; i < n; i++ {
		centre := -sep
		if i < nPos {
			centre = sep
			y.SetVec(i, 1)
		}
		for j := 0; j < f; j++ {
			X.Set(i, j, centre+r.NormFloat64())
		}
	}
	return X, y
}

// fixedConfig is a mid-range booster configuration.
func fixedConfig() tuning.Configuration {
	return tuning.NewConfiguration(map[string]interface{}{
		tuning.ParamTreeCount:       100,
		tuning.ParamMaxDepth:        3,
		tuning.ParamLearningRate:    0.1,
		tuning.ParamRowSubsample:    0.8,
		tuning.ParamColumnSubsample: 0.8,
		tuning.ParamMinSplitGain:    0.0,
		tuning.ParamL2Reg:           1.0,
		tuning.ParamL1Reg:           0.0,
	})
}

func fastEvalOptions() EvalOptions {
	opts := DefaultEvalOptions()
	opts.EarlyStoppingRounds = 10
	opts.MaxBin = 32
	return opts
}

// fastSearch shortens the TPE startup and the early stopping patience.
func fastSearch() []SearchOption {
	tpe := tuning.DefaultTPEConfig()
	tpe.NStartupTrials = 3
	tpe.NEICandidates = 8
	return []SearchOption{WithEvalOptions(fastEvalOptions()), WithTPEConfig(tpe)}
}
