package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/metrics"
	"github.com/YuminosukeSato/robotdetect/observability"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

// EvalOptions holds the training settings that are not searched.
type EvalOptions struct {
	// EarlyStoppingRounds is the patience on validation logloss; 0 disables it.
	EarlyStoppingRounds int
	// Seed drives row and column subsampling of the booster.
	Seed       uint64
	MaxBin     int
	NumThreads int
	// FeatureNames are recorded in the trained model when set.
	FeatureNames []string
	// Trial is the trial number reported in TrialFailedError.
	Trial int
}

// DefaultEvalOptions returns patience 50, seed 42 and 256 bins.
func DefaultEvalOptions() EvalOptions {
	return EvalOptions{
		EarlyStoppingRounds: 50,
		Seed:                42,
		MaxBin:              256,
	}
}

// ScalePosWeight returns count(y==0)/count(y==1). Both classes must be present.
func ScalePosWeight(y mat.Vector) (float64, error) {
	if y == nil || y.Len() == 0 {
		return 0, scigoErrors.NewValueError("ScalePosWeight", "labels are empty")
	}
	var pos, neg int
	for i := 0; i < y.Len(); i++ {
		switch y.AtVec(i) {
		case 1:
			pos++
		case 0:
			neg++
		default:
			return 0, scigoErrors.NewValueError("ScalePosWeight", "labels must be 0 or 1")
		}
	}
	if pos == 0 || neg == 0 {
		return 0, scigoErrors.NewValueError("ScalePosWeight", "training labels contain a single class")
	}
	return float64(neg) / float64(pos), nil
}

// TrainingParams maps a search configuration onto booster parameters.
func TrainingParams(cfg tuning.Configuration, scalePosWeight float64, opts EvalOptions) gbdt.TrainingParams {
	p := gbdt.DefaultTrainingParams()
	p.NumIterations = cfg.Int(tuning.ParamTreeCount)
	p.MaxDepth = cfg.Int(tuning.ParamMaxDepth)
	p.LearningRate = cfg.Float(tuning.ParamLearningRate)
	p.Subsample = cfg.Float(tuning.ParamRowSubsample)
	p.ColsampleByTree = cfg.Float(tuning.ParamColumnSubsample)
	p.Gamma = cfg.Float(tuning.ParamMinSplitGain)
	p.Lambda = cfg.Float(tuning.ParamL2Reg)
	p.Alpha = cfg.Float(tuning.ParamL1Reg)
	p.ScalePosWeight = scalePosWeight
	p.EarlyStoppingRounds = opts.EarlyStoppingRounds
	p.Seed = opts.Seed
	if opts.MaxBin > 0 {
		p.MaxBin = opts.MaxBin
	}
	p.NumThreads = opts.NumThreads
	return p
}

// Evaluate trains a booster with cfg on the training rows, early-stopped on
// the validation rows, and returns the validation average precision in
// [0, 1]. Every failure is returned as a TrialFailedError.
func Evaluate(ctx context.Context, cfg tuning.Configuration, xTrain mat.Matrix, yTrain *mat.VecDense,
	xVal mat.Matrix, yVal *mat.VecDense, opts EvalOptions) (score float64, err error) {
	_, span := observability.StartSpan(ctx, "pipeline.Evaluate",
		attribute.Int("search.trial", opts.Trial),
		attribute.String("model.hyperparams", cfg.Describe()),
	)
	defer span.End()
	defer func() {
		if err == nil {
			return
		}
		if !scigoErrors.IsTrialFailure(err) {
			err = scigoErrors.NewTrialFailedError(opts.Trial, err)
		}
		score = 0
		observability.RecordError(span, err)
	}()
	defer scigoErrors.Recover(&err, "pipeline.Evaluate")

	spw, err := ScalePosWeight(yTrain)
	if err != nil {
		return 0, err
	}
	clf := gbdt.NewGBClassifier().WithParams(TrainingParams(cfg, spw, opts))
	if opts.FeatureNames != nil {
		clf.WithFeatureNames(opts.FeatureNames)
	}
	evalSets := []gbdt.EvalSet{{Name: "validation", X: xVal, Y: mat.Col(nil, 0, yVal)}}
	if err := clf.FitWithEval(xTrain, yTrain, evalSets); err != nil {
		return 0, err
	}

	proba, err := clf.PredictPositive(xVal)
	if err != nil {
		return 0, err
	}
	ap, err := metrics.AveragePrecision(yVal, proba)
	if err != nil {
		return 0, err
	}
	if err := scigoErrors.CheckScalar("pipeline.Evaluate", ap, opts.Trial); err != nil {
		return 0, err
	}
	score = scigoErrors.ClipValue(ap, 0, 1)

	span.SetAttributes(
		attribute.Float64("search.score", score),
		attribute.Int("training.best_iteration", clf.Model().BestIteration),
	)
	return score, nil
}
