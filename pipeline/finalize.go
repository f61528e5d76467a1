package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/metrics"
	"github.com/YuminosukeSato/robotdetect/observability"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

// ClassNames labels class 0 and class 1 in reports.
var ClassNames = [2]string{"Human", "Robot"}

// topFeatures is the length of the importance ranking kept in Evaluation.
const topFeatures = 10

// Evaluation is the held-out assessment of the final model.
type Evaluation struct {
	Report           *metrics.Report       `json:"classification_report"`
	Confusion        metrics.Confusion     `json:"confusion_matrix"`
	ROC              []metrics.ROCPoint    `json:"roc_curve"`
	AUC              float64               `json:"roc_auc"`
	PR               []metrics.PRPoint     `json:"pr_curve"`
	AveragePrecision float64               `json:"average_precision"`
	LogLoss          float64               `json:"logloss"`
	TopFeatures      gbdt.RankedImportance `json:"top_features"`
	BestIteration    int                   `json:"best_iteration"`
	NumTrees         int                   `json:"n_trees"`
	ScalePosWeight   float64               `json:"scale_pos_weight"`
	Params           tuning.Configuration  `json:"params"`
}

// FinalResult bundles the final model and its evaluation.
type FinalResult struct {
	Classifier    *gbdt.GBClassifier
	Model         *gbdt.Model
	Evaluation    *Evaluation
	Probabilities *mat.VecDense
	Predictions   *mat.VecDense
}

// Finalize retrains best on the training rows with the same class weighting
// and early stopping, monitoring [train, test] with the test set last, and
// evaluates the model on the test rows. Results are identical for identical
// inputs.
func Finalize(ctx context.Context, best tuning.Configuration, xTrain mat.Matrix, yTrain *mat.VecDense,
	xTest mat.Matrix, yTest *mat.VecDense, opts EvalOptions) (res *FinalResult, err error) {
	_, span := observability.StartSpan(ctx, "pipeline.Finalize",
		attribute.String("model.hyperparams", best.Describe()),
	)
	defer span.End()
	defer func() { observability.RecordError(span, err) }()
	defer scigoErrors.Recover(&err, "pipeline.Finalize")

	logger := log.GetLoggerWithName("pipeline.finalize")
	start := time.Now()

	if err := tuning.BoosterSpace().Validate(best); err != nil {
		return nil, err
	}
	spw, err := ScalePosWeight(yTrain)
	if err != nil {
		return nil, err
	}

	clf := gbdt.NewGBClassifier().WithParams(TrainingParams(best, spw, opts))
	if opts.FeatureNames != nil {
		clf.WithFeatureNames(opts.FeatureNames)
	}
	evalSets := []gbdt.EvalSet{
		{Name: "train", X: xTrain, Y: mat.Col(nil, 0, yTrain)},
		{Name: "test", X: xTest, Y: mat.Col(nil, 0, yTest)},
	}
	if err := clf.FitWithEval(xTrain, yTrain, evalSets); err != nil {
		return nil, scigoErrors.Wrap(err, "final training failed")
	}

	proba, err := clf.PredictPositive(xTest)
	if err != nil {
		return nil, err
	}
	pred := mat.NewVecDense(proba.Len(), nil)
	for i := 0; i < proba.Len(); i++ {
		if proba.AtVec(i) > 0.5 {
			pred.SetVec(i, 1)
		}
	}

	model := clf.Model()
	eval := &Evaluation{
		BestIteration:  model.BestIteration,
		NumTrees:       model.NumTrees(),
		ScalePosWeight: spw,
		Params:         best.Clone(),
	}
	if eval.Report, err = metrics.ClassificationReport(yTest, pred, ClassNames); err != nil {
		return nil, err
	}
	if eval.Confusion, err = metrics.ConfusionMatrix(yTest, pred); err != nil {
		return nil, err
	}
	if eval.ROC, err = metrics.ROCCurve(yTest, proba); err != nil {
		return nil, err
	}
	if eval.AUC, err = metrics.AUC(yTest, proba); err != nil {
		return nil, err
	}
	if eval.PR, err = metrics.PrecisionRecallCurve(yTest, proba); err != nil {
		return nil, err
	}
	if eval.AveragePrecision, err = metrics.AveragePrecision(yTest, proba); err != nil {
		return nil, err
	}
	if eval.LogLoss, err = metrics.BinaryLogLoss(yTest, proba); err != nil {
		return nil, err
	}
	ranked, err := model.RankFeatures(gbdt.ImportanceGain)
	if err != nil {
		return nil, err
	}
	eval.TopFeatures = ranked.Top(topFeatures)

	span.SetAttributes(
		attribute.Float64("metrics.pr_auc", eval.AveragePrecision),
		attribute.Float64("metrics.roc_auc", eval.AUC),
		attribute.Int("training.best_iteration", eval.BestIteration),
	)
	logger.Info("Final model evaluated",
		log.OperationKey, log.OperationFinalize,
		log.PRAUCKey, eval.AveragePrecision,
		log.ROCAUCKey, eval.AUC,
		log.AccuracyKey, eval.Report.Accuracy,
		log.BestIterationKey, eval.BestIteration,
		log.ScalePosWeightKey, spw,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	return &FinalResult{
		Classifier:    clf,
		Model:         model,
		Evaluation:    eval,
		Probabilities: proba,
		Predictions:   pred,
	}, nil
}
