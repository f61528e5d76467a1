package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/observability"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

// SearchOption configures Search.
type SearchOption func(*searchSettings)

type searchSettings struct {
	eval      EvalOptions
	tpe       tuning.TPEConfig
	studyOpts []tuning.StudyOption
	metrics   *observability.SearchMetrics
}

// WithEvalOptions sets the fixed training settings of every trial.
func WithEvalOptions(opts EvalOptions) SearchOption {
	return func(s *searchSettings) { s.eval = opts }
}

// WithTPEConfig overrides the sampler settings.
func WithTPEConfig(cfg tuning.TPEConfig) SearchOption {
	return func(s *searchSettings) { s.tpe = cfg }
}

// WithStudyOptions passes options through to the study.
func WithStudyOptions(opts ...tuning.StudyOption) SearchOption {
	return func(s *searchSettings) { s.studyOpts = append(s.studyOpts, opts...) }
}

// WithMetrics records every trial in m.
func WithMetrics(m *observability.SearchMetrics) SearchOption {
	return func(s *searchSettings) { s.metrics = m }
}

// Search runs nTrials sequential trials over the booster space with a TPE
// sampler seeded by seed, maximising validation average precision. It
// returns the best configuration (ties go to the earliest trial) and the
// study holding the full trial history.
func Search(ctx context.Context, xTrain mat.Matrix, yTrain *mat.VecDense, xVal mat.Matrix, yVal *mat.VecDense,
	nTrials int, seed uint64, opts ...SearchOption) (tuning.Configuration, *tuning.Study, error) {
	s := searchSettings{eval: DefaultEvalOptions(), tpe: tuning.DefaultTPEConfig()}
	for _, opt := range opts {
		opt(&s)
	}
	s.tpe.Maximize = true

	ctx, span := observability.StartSpan(ctx, "pipeline.Search",
		attribute.Int("search.n_trials", nTrials),
		attribute.Int64("config.random_seed", int64(seed)),
	)
	defer span.End()

	logger := log.GetLoggerWithName("pipeline.search")
	start := time.Now()

	var study *tuning.Study
	studyOpts := append([]tuning.StudyOption{tuning.WithDirection(tuning.Maximize)}, s.studyOpts...)
	if s.metrics != nil {
		studyOpts = append(studyOpts, tuning.WithTrialCallback(func(r tuning.TrialResult) {
			s.metrics.ObserveTrial(string(r.State), r.Score, r.Duration)
			if best, err := study.BestScore(); err == nil {
				s.metrics.SetBestScore(best)
			}
		}))
	}
	study = tuning.NewStudy(tuning.BoosterSpace(), tuning.NewTPESamplerWithConfig(seed, s.tpe), studyOpts...)

	objective := func(ctx context.Context, trial int, cfg tuning.Configuration) (float64, error) {
		o := s.eval
		o.Trial = trial
		return Evaluate(ctx, cfg, xTrain, yTrain, xVal, yVal, o)
	}
	if err := study.Optimize(ctx, objective, nTrials); err != nil {
		observability.RecordError(span, err)
		return tuning.Configuration{}, study, err
	}

	best, err := study.BestTrial()
	if err != nil {
		observability.RecordError(span, err)
		return tuning.Configuration{}, study, err
	}
	span.SetAttributes(
		attribute.Int("search.best_trial", best.Number),
		attribute.Float64("search.best_score", best.Score),
	)
	if s.metrics != nil {
		s.metrics.ObserveStage(StageSearch, time.Since(start))
	}
	logger.Info("Search complete",
		log.OperationKey, log.OperationSearch,
		log.StudyIDKey, study.ID(),
		log.BestTrialKey, best.Number,
		log.PRAUCKey, best.Score,
		log.HyperParamsKey, best.Config.Describe(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return best.Config.Clone(), study, nil
}
