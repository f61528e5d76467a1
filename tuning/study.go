package tuning

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

// Direction says whether higher or lower scores are better.
type Direction string

// Optimisation directions.
const (
	Maximize Direction = "maximize"
	Minimize Direction = "minimize"
)

// ObjectiveFunc evaluates one configuration. Returning an error that
// satisfies errors.IsTrialFailure marks the trial failed and the study
// continues; any other error aborts the study.
type ObjectiveFunc func(ctx context.Context, trial int, cfg Configuration) (float64, error)

// StudyOption configures a Study.
type StudyOption func(*Study)

// WithStorage records trials in storage in addition to memory.
func WithStorage(storage Storage) StudyOption {
	return func(s *Study) { s.storage = storage }
}

// WithProgress sends a ProgressUpdate after every trial. Sends never block;
// updates are dropped while the channel is full.
func WithProgress(ch chan<- ProgressUpdate) StudyOption {
	return func(s *Study) { s.progress = ch }
}

// WithStudyName sets a human readable study name.
func WithStudyName(name string) StudyOption {
	return func(s *Study) { s.name = name }
}

// WithDirection sets the optimisation direction; the default is Maximize.
func WithDirection(d Direction) StudyOption {
	return func(s *Study) { s.direction = d }
}

// WithTrialCallback runs fn synchronously after each trial is recorded.
func WithTrialCallback(fn func(TrialResult)) StudyOption {
	return func(s *Study) { s.callbacks = append(s.callbacks, fn) }
}

// Study runs a sequential hyperparameter search and owns its trial history.
type Study struct {
	id        string
	name      string
	direction Direction
	space     *Space
	sampler   Sampler
	storage   Storage
	progress  chan<- ProgressUpdate
	callbacks []func(TrialResult)
	created   time.Time
	stored    bool

	mu     sync.RWMutex
	trials []TrialResult

	logger log.Logger
}

// NewStudy creates a study over space driven by sampler.
func NewStudy(space *Space, sampler Sampler, opts ...StudyOption) *Study {
	s := &Study{
		id:        uuid.New().String(),
		name:      "robotdetect",
		direction: Maximize,
		space:     space,
		sampler:   sampler,
		created:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.GetLoggerWithName("tuning.study").With(
		log.StudyIDKey, s.id,
		log.SamplerKey, sampler.Name(),
	)
	return s
}

// ID returns the study identifier.
func (s *Study) ID() string { return s.id }

// Name returns the study name.
func (s *Study) Name() string { return s.name }

// Direction returns the optimisation direction.
func (s *Study) Direction() Direction { return s.direction }

// Space returns the search space.
func (s *Study) Space() *Space { return s.space }

// Sampler returns the sampler owned by the study.
func (s *Study) Sampler() Sampler { return s.sampler }

// Info returns the storage record of the study.
func (s *Study) Info() StudyInfo {
	return StudyInfo{
		ID:        s.id,
		Name:      s.name,
		Direction: string(s.direction),
		Sampler:   s.sampler.Name(),
		Created:   s.created,
	}
}

// Optimize evaluates nTrials configurations one after another. Context
// cancellation is checked between trials. A configuration outside the space
// aborts with a ConfigurationDomainError.
func (s *Study) Optimize(ctx context.Context, objective ObjectiveFunc, nTrials int) error {
	if nTrials < 1 {
		return scigoErrors.NewValidationError("n_trials", "must be >= 1", nTrials)
	}
	if s.storage != nil && !s.stored {
		if err := s.storage.CreateStudy(ctx, s.Info()); err != nil {
			return err
		}
		s.stored = true
	}

	s.logger.Info("Starting study",
		log.OperationKey, log.OperationSearch,
		"search.n_trials", nTrials,
	)

	for k := 0; k < nTrials; k++ {
		if err := ctx.Err(); err != nil {
			return scigoErrors.Wrap(err, "study interrupted")
		}

		phase := PhaseOptimization
		if ps, ok := s.sampler.(interface{ InStartup() bool }); ok && ps.InStartup() {
			phase = PhaseStartup
		}

		cfg, err := s.sampler.Sample(s.space)
		if err != nil {
			return scigoErrors.Wrap(err, "sampler failed")
		}
		if err := s.space.Validate(cfg); err != nil {
			return err
		}

		number := s.nextNumber()
		result := s.runTrial(ctx, objective, number, cfg)
		if result.fatal != nil {
			return result.fatal
		}

		if err := s.record(ctx, result.TrialResult); err != nil {
			return err
		}
		s.report(result.TrialResult, phase, nTrials)
	}

	if best, err := s.BestTrial(); err == nil {
		s.logger.Info("Study finished",
			log.BestTrialKey, best.Number,
			log.BestScoreKey, best.Score,
			log.HyperParamsKey, best.Config.Describe(),
		)
	} else {
		s.logger.Warn("Study finished without a completed trial")
	}
	return nil
}

type trialOutcome struct {
	TrialResult
	fatal error
}

func (s *Study) runTrial(ctx context.Context, objective ObjectiveFunc, number int, cfg Configuration) trialOutcome {
	start := time.Now()
	score, err := objective(ctx, number, cfg)
	res := TrialResult{
		Number:   number,
		Config:   cfg,
		Score:    score,
		State:    TrialComplete,
		Start:    start,
		Duration: time.Since(start),
	}

	switch {
	case err != nil && !scigoErrors.IsTrialFailure(err):
		return trialOutcome{TrialResult: res, fatal: err}
	case err != nil:
		res.State = TrialFailed
		res.Score = 0
		res.Err = err.Error()
		s.logger.Warn("Trial failed", err,
			log.TrialNumberKey, number,
			log.HyperParamsKey, cfg.Describe(),
		)
	case math.IsNaN(score) || math.IsInf(score, 0):
		res.State = TrialFailed
		res.Score = 0
		res.Err = "objective returned a non-finite score"
		s.logger.Warn("Trial failed", log.TrialNumberKey, number, "search.raw_score", score)
	}
	return trialOutcome{TrialResult: res}
}

func (s *Study) nextNumber() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trials)
}

func (s *Study) record(ctx context.Context, res TrialResult) error {
	if s.storage != nil {
		if err := s.storage.SaveTrial(ctx, s.id, res); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.trials = append(s.trials, res)
	s.mu.Unlock()

	s.sampler.Observe(res)
	for _, fn := range s.callbacks {
		fn(res)
	}
	return nil
}

func (s *Study) report(res TrialResult, phase string, total int) {
	best, bestErr := s.BestTrial()

	s.logger.Info("Trial finished",
		log.TrialNumberKey, res.Number,
		log.TrialScoreKey, res.Score,
		log.TrialStateKey, string(res.State),
		log.BestScoreKey, best.Score,
		log.DurationMsKey, res.Duration.Milliseconds(),
	)

	if s.progress == nil {
		return
	}
	update := ProgressUpdate{
		StudyID:     s.id,
		Trial:       res.Number,
		TotalTrials: total,
		Phase:       phase,
		Score:       res.Score,
		State:       res.State,
		BestTrial:   -1,
	}
	if bestErr == nil {
		update.BestTrial = best.Number
		update.BestScore = best.Score
		update.BestConfig = best.Config
	}
	select {
	case s.progress <- update:
	default:
		// Skip update if channel is full.
	}
}

// Trials returns a copy of the trial history in trial order.
func (s *Study) Trials() []TrialResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TrialResult(nil), s.trials...)
}

// BestTrial returns the best completed trial. Ties go to the earliest trial.
func (s *Study) BestTrial() (TrialResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bestIdx := -1
	for i, t := range s.trials {
		if t.State != TrialComplete {
			continue
		}
		if bestIdx < 0 || s.better(t.Score, s.trials[bestIdx].Score) {
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return TrialResult{}, scigoErrors.WithStack(scigoErrors.ErrNoTrials)
	}
	return s.trials[bestIdx], nil
}

func (s *Study) better(a, b float64) bool {
	if s.direction == Minimize {
		return a < b
	}
	return a > b
}

// BestConfiguration returns the configuration of the best trial.
func (s *Study) BestConfiguration() (Configuration, error) {
	best, err := s.BestTrial()
	if err != nil {
		return Configuration{}, err
	}
	return best.Config.Clone(), nil
}

// BestScore returns the score of the best trial.
func (s *Study) BestScore() (float64, error) {
	best, err := s.BestTrial()
	if err != nil {
		return 0, err
	}
	return best.Score, nil
}

// Summary is the serialisable digest of a study.
type Summary struct {
	Study     StudyInfo     `json:"study"`
	Space     []Bound       `json:"space"`
	BestTrial *TrialResult  `json:"best_trial,omitempty"`
	Trials    []TrialResult `json:"trials"`
	NComplete int           `json:"n_complete"`
	NFailed   int           `json:"n_failed"`
}

// Summary returns the study digest written to study.json.
func (s *Study) Summary() Summary {
	trials := s.Trials()
	sum := Summary{Study: s.Info(), Space: s.space.Bounds(), Trials: trials}
	for _, t := range trials {
		if t.State == TrialComplete {
			sum.NComplete++
		} else {
			sum.NFailed++
		}
	}
	if best, err := s.BestTrial(); err == nil {
		sum.BestTrial = &best
	}
	return sum
}
