package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/YuminosukeSato/robotdetect/config"
	"github.com/YuminosukeSato/robotdetect/dataset"
	"github.com/YuminosukeSato/robotdetect/observability"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/preprocessing"
	"github.com/YuminosukeSato/robotdetect/report"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

// Pipeline stages reported in metrics.
const (
	StagePrepare  = "prepare"
	StageSearch   = "search"
	StageFinalize = "finalize"
	StageReport   = "report"
)

// Output file names written next to the model.
const (
	MetricsFile     = "metrics.json"
	StudyFile       = "study.json"
	PrometheusFile  = "metrics.prom"
	defaultDirPerms = 0o755
)

// RunResult is everything a run produced.
type RunResult struct {
	Split     *preprocessing.Split
	Study     *tuning.Study
	Best      tuning.Configuration
	Final     *FinalResult
	Metrics   *observability.SearchMetrics
	Artifacts []string
}

// Run reads the input table, prepares it, searches hyperparameters, trains
// and evaluates the final model and writes every artifact to cfg.Output.Dir.
func Run(ctx context.Context, cfg *config.Config) (res *RunResult, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.Run",
		attribute.String("data.path", cfg.Data.Path),
		attribute.Int("search.n_trials", cfg.Search.Trials),
	)
	defer span.End()
	defer func() { observability.RecordError(span, err) }()

	logger := log.GetLoggerWithName("pipeline")
	res = &RunResult{Metrics: observability.NewSearchMetrics()}

	// Data preparation
	stageStart := time.Now()
	frame, err := dataset.ReadCSVFile(cfg.Data.Path, dataset.ReadOptions{Delimiter: cfg.Delimiter()})
	if err != nil {
		return nil, err
	}
	prepOpts, err := cfg.PrepareOptions()
	if err != nil {
		return nil, err
	}
	_, prepSpan := observability.StartSpan(ctx, "preprocessing.Prepare")
	res.Split, err = preprocessing.Prepare(frame, cfg.Data.Target, prepOpts)
	observability.RecordError(prepSpan, err)
	prepSpan.End()
	if err != nil {
		return nil, err
	}
	res.Metrics.ObserveStage(StagePrepare, time.Since(stageStart))

	// Search
	evalOpts := EvalOptions{
		EarlyStoppingRounds: cfg.Training.EarlyStoppingRounds,
		Seed:                cfg.Training.Seed,
		MaxBin:              cfg.Training.MaxBin,
		NumThreads:          cfg.Training.NumThreads,
		FeatureNames:        res.Split.FeatureNames,
	}
	tpe := tuning.DefaultTPEConfig()
	tpe.NStartupTrials = cfg.Search.StartupTrials
	tpe.NEICandidates = cfg.Search.EICandidates

	studyOpts := []tuning.StudyOption{tuning.WithStudyName("robotdetect")}
	if cfg.Search.Storage != "" {
		storage, err := tuning.NewSQLiteStorage(cfg.Search.Storage)
		if err != nil {
			return nil, err
		}
		defer storage.Close()
		studyOpts = append(studyOpts, tuning.WithStorage(storage))
	}

	split := res.Split
	// There is no separate validation split: trials are scored on the test rows.
	res.Best, res.Study, err = Search(ctx, split.XTrain, split.YTrain, split.XTest, split.YTest,
		cfg.Search.Trials, cfg.Search.Seed,
		WithEvalOptions(evalOpts),
		WithTPEConfig(tpe),
		WithStudyOptions(studyOpts...),
		WithMetrics(res.Metrics),
	)
	if err != nil {
		return nil, err
	}

	// Final model
	stageStart = time.Now()
	res.Final, err = Finalize(ctx, res.Best, split.XTrain, split.YTrain, split.XTest, split.YTest, evalOpts)
	if err != nil {
		return nil, err
	}
	res.Metrics.ObserveStage(StageFinalize, time.Since(stageStart))

	eval := res.Final.Evaluation
	res.Metrics.SetFinalMetric("average_precision", eval.AveragePrecision)
	res.Metrics.SetFinalMetric("roc_auc", eval.AUC)
	res.Metrics.SetFinalMetric("accuracy", eval.Report.Accuracy)
	res.Metrics.SetFinalMetric("logloss", eval.LogLoss)
	res.Metrics.BoostingRounds.Set(float64(eval.NumTrees))

	// Artifacts
	stageStart = time.Now()
	if res.Artifacts, err = writeArtifacts(cfg.Output, res); err != nil {
		return nil, err
	}
	res.Metrics.ObserveStage(StageReport, time.Since(stageStart))
	promPath := filepath.Join(cfg.Output.Dir, PrometheusFile)
	if err := res.Metrics.WriteTextfile(promPath); err != nil {
		return nil, err
	}
	res.Artifacts = append(res.Artifacts, promPath)

	logger.Info("Run complete",
		log.PRAUCKey, eval.AveragePrecision,
		log.ROCAUCKey, eval.AUC,
		log.PathKey, cfg.Output.Dir,
	)
	return res, nil
}

func writeArtifacts(out config.OutputConfig, res *RunResult) ([]string, error) {
	if err := os.MkdirAll(out.Dir, defaultDirPerms); err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to create %s", out.Dir)
	}
	var paths []string

	modelPath := filepath.Join(out.Dir, out.Model)
	if err := res.Final.Model.SaveToFile(modelPath); err != nil {
		return nil, err
	}
	paths = append(paths, modelPath)

	metricsPath := filepath.Join(out.Dir, MetricsFile)
	if err := report.WriteJSON(metricsPath, res.Final.Evaluation); err != nil {
		return nil, err
	}
	paths = append(paths, metricsPath)

	studyPath := filepath.Join(out.Dir, StudyFile)
	if err := report.WriteJSON(studyPath, res.Study.Summary()); err != nil {
		return nil, err
	}
	paths = append(paths, studyPath)

	eval := res.Final.Evaluation
	charts, err := report.RenderAll(out.Dir, report.Artifacts{
		ClassNames:       ClassNames,
		Confusion:        eval.Confusion,
		ROC:              eval.ROC,
		AUC:              eval.AUC,
		PR:               eval.PR,
		AveragePrecision: eval.AveragePrecision,
		TopFeatures:      eval.TopFeatures,
	})
	if err != nil {
		return nil, err
	}
	return append(paths, charts...), nil
}
