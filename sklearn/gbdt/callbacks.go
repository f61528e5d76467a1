package gbdt

import (
	"time"

	"github.com/YuminosukeSato/robotdetect/pkg/log"
)

// CallbackEnv contains the environment passed to callbacks after each iteration.
type CallbackEnv struct {
	Iteration    int
	BeginTime    time.Time
	EndTime      time.Time
	EvalResults  map[string]float64
	StopTraining bool
}

// Callback is a function called after every boosting iteration.
type Callback func(env *CallbackEnv) error

// LogEvaluation logs evaluation results every period iterations at debug level.
func LogEvaluation(logger log.Logger, period int) Callback {
	if period <= 0 {
		period = 1
	}
	return func(env *CallbackEnv) error {
		if env.Iteration%period != 0 {
			return nil
		}
		attrs := []any{log.IterationKey, env.Iteration,
			log.DurationMsKey, env.EndTime.Sub(env.BeginTime).Milliseconds()}
		for name, value := range env.EvalResults {
			attrs = append(attrs, name, value)
		}
		logger.Debug("Boosting iteration", attrs...)
		return nil
	}
}

// RecordEvaluation records evaluation history into history.
func RecordEvaluation(history map[string][]float64) Callback {
	return func(env *CallbackEnv) error {
		for name, value := range env.EvalResults {
			history[name] = append(history[name], value)
		}
		return nil
	}
}

// TimeLimit stops training after the given duration.
func TimeLimit(maxDuration time.Duration) Callback {
	startTime := time.Now()
	return func(env *CallbackEnv) error {
		if time.Since(startTime) > maxDuration {
			env.StopTraining = true
		}
		return nil
	}
}

// CallbackList manages multiple callbacks.
type CallbackList struct {
	callbacks []Callback
	env       *CallbackEnv
}

// NewCallbackList creates a new callback list.
func NewCallbackList(callbacks ...Callback) *CallbackList {
	return &CallbackList{
		callbacks: callbacks,
		env:       &CallbackEnv{EvalResults: make(map[string]float64)},
	}
}

// BeforeIteration stamps the start time of an iteration.
func (cl *CallbackList) BeforeIteration(iteration int) {
	cl.env.Iteration = iteration
	cl.env.BeginTime = time.Now()
}

// AfterIteration calls every callback with the iteration results.
func (cl *CallbackList) AfterIteration(iteration int, evalResults map[string]float64) error {
	cl.env.Iteration = iteration
	cl.env.EndTime = time.Now()
	cl.env.EvalResults = evalResults

	for _, cb := range cl.callbacks {
		if err := cb(cl.env); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop returns whether a callback asked to stop training.
func (cl *CallbackList) ShouldStop() bool {
	return cl.env.StopTraining
}
