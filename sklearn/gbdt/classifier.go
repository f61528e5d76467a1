package gbdt

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/core/model"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

// GBClassifier is a gradient-boosted tree classifier for 0/1 targets with a
// scikit-learn style API.
type GBClassifier struct {
	state *model.StateManager

	Params       TrainingParams
	FeatureNames []string

	callbacks   []Callback
	model       *Model
	evalHistory map[string][]float64
	logger      log.Logger
}

// NewGBClassifier creates a classifier with default parameters.
func NewGBClassifier() *GBClassifier {
	return &GBClassifier{
		state:  model.NewStateManager("GBClassifier"),
		Params: DefaultTrainingParams(),
		logger: log.GetLoggerWithName("gbdt.classifier"),
	}
}

// WithParams replaces every training parameter.
func (c *GBClassifier) WithParams(p TrainingParams) *GBClassifier {
	c.Params = p
	return c
}

// WithNumIterations sets the number of boosting rounds.
func (c *GBClassifier) WithNumIterations(n int) *GBClassifier {
	c.Params.NumIterations = n
	return c
}

// WithMaxDepth sets the maximum depth.
func (c *GBClassifier) WithMaxDepth(d int) *GBClassifier {
	c.Params.MaxDepth = d
	return c
}

// WithLearningRate sets the learning rate.
func (c *GBClassifier) WithLearningRate(lr float64) *GBClassifier {
	c.Params.LearningRate = lr
	return c
}

// WithSubsample sets the per-tree row sampling ratio.
func (c *GBClassifier) WithSubsample(r float64) *GBClassifier {
	c.Params.Subsample = r
	return c
}

// WithColsampleByTree sets the per-tree column sampling ratio.
func (c *GBClassifier) WithColsampleByTree(r float64) *GBClassifier {
	c.Params.ColsampleByTree = r
	return c
}

// WithGamma sets the minimum loss reduction required to keep a split.
func (c *GBClassifier) WithGamma(g float64) *GBClassifier {
	c.Params.Gamma = g
	return c
}

// WithRegLambda sets the L2 penalty.
func (c *GBClassifier) WithRegLambda(l float64) *GBClassifier {
	c.Params.Lambda = l
	return c
}

// WithRegAlpha sets the L1 penalty.
func (c *GBClassifier) WithRegAlpha(a float64) *GBClassifier {
	c.Params.Alpha = a
	return c
}

// WithMinChildWeight sets the minimum hessian sum per child.
func (c *GBClassifier) WithMinChildWeight(w float64) *GBClassifier {
	c.Params.MinChildWeight = w
	return c
}

// WithScalePosWeight sets the positive-class gradient weight.
func (c *GBClassifier) WithScalePosWeight(w float64) *GBClassifier {
	c.Params.ScalePosWeight = w
	return c
}

// WithEarlyStopping sets early stopping rounds.
func (c *GBClassifier) WithEarlyStopping(rounds int) *GBClassifier {
	c.Params.EarlyStoppingRounds = rounds
	return c
}

// WithRandomState sets the random seed.
func (c *GBClassifier) WithRandomState(seed uint64) *GBClassifier {
	c.Params.Seed = seed
	return c
}

// WithMaxBin sets the histogram resolution.
func (c *GBClassifier) WithMaxBin(n int) *GBClassifier {
	c.Params.MaxBin = n
	return c
}

// WithNumThreads caps the worker count; <= 0 uses every core.
func (c *GBClassifier) WithNumThreads(n int) *GBClassifier {
	c.Params.NumThreads = n
	return c
}

// WithFeatureNames sets the column names stored in the model.
func (c *GBClassifier) WithFeatureNames(names []string) *GBClassifier {
	c.FeatureNames = append([]string(nil), names...)
	return c
}

// WithCallbacks adds callbacks run after every iteration.
func (c *GBClassifier) WithCallbacks(cbs ...Callback) *GBClassifier {
	c.callbacks = append(c.callbacks, cbs...)
	return c
}

// Fit trains the classifier without eval sets.
func (c *GBClassifier) Fit(X, y mat.Matrix) error {
	return c.FitWithEval(X, y, nil)
}

// FitWithEval trains the classifier. With early stopping enabled the last
// eval set is monitored.
func (c *GBClassifier) FitWithEval(X, y mat.Matrix, evalSets []EvalSet) (err error) {
	defer scigoErrors.Recover(&err, "GBClassifier.Fit")

	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if yCols != 1 {
		return scigoErrors.NewDimensionError("GBClassifier.Fit", 1, yCols, 1)
	}
	if yRows != rows {
		return scigoErrors.NewDimensionError("GBClassifier.Fit", rows, yRows, 0)
	}
	targets := make([]float64, rows)
	for i := range targets {
		targets[i] = y.At(i, 0)
	}

	start := time.Now()
	c.state.Reset()
	trainer := NewTrainer(c.Params)
	if c.FeatureNames != nil {
		trainer.SetFeatureNames(c.FeatureNames)
	}
	if err := trainer.Fit(X, targets, evalSets, c.callbacks...); err != nil {
		return err
	}

	c.model = trainer.GetModel()
	c.evalHistory = trainer.EvalHistory()
	c.state.MarkFitted(cols, rows)

	c.logger.Debug("Fit complete",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.BestIterationKey, c.model.BestIteration,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return nil
}

// PredictProba returns an n x 2 matrix of class probabilities.
func (c *GBClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := c.state.RequireFitted("PredictProba"); err != nil {
		return nil, err
	}
	_, cols := X.Dims()
	if err := c.state.RequireFeatures("GBClassifier.PredictProba", cols); err != nil {
		return nil, err
	}
	return c.model.PredictProba(X)
}

// PredictPositive returns the positive-class probability of every row.
func (c *GBClassifier) PredictPositive(X mat.Matrix) (*mat.VecDense, error) {
	proba, err := c.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, _ := proba.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		out.SetVec(i, proba.At(i, 1))
	}
	return out, nil
}

// Predict returns 1 where the positive probability exceeds 0.5, else 0.
func (c *GBClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	p, err := c.PredictPositive(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(p.Len(), nil)
	for i := 0; i < p.Len(); i++ {
		if p.AtVec(i) > 0.5 {
			out.SetVec(i, 1)
		}
	}
	return out, nil
}

// FeatureImportance returns normalised per-feature importance.
func (c *GBClassifier) FeatureImportance(importanceType string) ([]float64, error) {
	if err := c.state.RequireFitted("FeatureImportance"); err != nil {
		return nil, err
	}
	return c.model.FeatureImportance(importanceType)
}

// GetParams returns the training parameters.
func (c *GBClassifier) GetParams() map[string]interface{} {
	return c.Params.ToMap()
}

// Model returns the trained ensemble, or nil before Fit.
func (c *GBClassifier) Model() *Model {
	return c.model
}

// EvalHistory returns the per-iteration logloss of each eval set.
func (c *GBClassifier) EvalHistory() map[string][]float64 {
	return c.evalHistory
}

// IsFitted reports whether Fit has completed.
func (c *GBClassifier) IsFitted() bool {
	return c.state.IsFitted()
}

// SaveToFile writes the trained model as JSON.
func (c *GBClassifier) SaveToFile(path string) error {
	if err := c.state.RequireFitted("SaveToFile"); err != nil {
		return err
	}
	return c.model.SaveToFile(path)
}

var (
	_ model.ProbabilisticClassifier = (*GBClassifier)(nil)
	_ model.ImportanceReporter      = (*GBClassifier)(nil)
	_ model.ParameterGetter         = (*GBClassifier)(nil)
	_ model.Persistable             = (*GBClassifier)(nil)
	_ model.ImportanceReporter      = (*Model)(nil)
	_ model.Persistable             = (*Model)(nil)
)
