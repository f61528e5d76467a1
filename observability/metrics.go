// Package observability provides Prometheus collectors and OpenTelemetry
// tracing for the training pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// SearchMetrics collects search and training statistics of one run.
//
// Collectors live in a private registry so several runs (and tests) can
// coexist in one process. The registry is exported once at the end of a run
// as a Prometheus textfile.
//
// Usage:
//
//	m := observability.NewSearchMetrics()
//	m.ObserveTrial("complete", 0.91, time.Since(start))
//	_ = m.WriteTextfile("results/metrics.prom")
type SearchMetrics struct {
	registry *prometheus.Registry

	// TrialsTotal counts finished trials.
	// Labels: state (complete|failed)
	TrialsTotal *prometheus.CounterVec

	// TrialDuration measures the wall time of one trial in seconds.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	TrialDuration prometheus.Histogram

	// TrialScore is the score of the most recent trial.
	TrialScore prometheus.Gauge

	// BestScore is the best completed trial score so far.
	BestScore prometheus.Gauge

	// StageDuration records how long each pipeline stage took in seconds.
	// Labels: stage (prepare|search|finalize|report)
	StageDuration *prometheus.GaugeVec

	// FinalMetric holds the held-out metrics of the final model.
	// Labels: metric (average_precision|roc_auc|accuracy|logloss)
	FinalMetric *prometheus.GaugeVec

	// BoostingRounds is the number of trees kept by the final model.
	BoostingRounds prometheus.Gauge
}

// NewSearchMetrics creates the collectors in a fresh registry.
func NewSearchMetrics() *SearchMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &SearchMetrics{
		registry: reg,
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "robotdetect_trials_total",
				Help: "Total number of search trials by terminal state",
			},
			[]string{"state"},
		),
		TrialDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "robotdetect_trial_duration_seconds",
				Help:    "Duration of one search trial in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),
		TrialScore: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "robotdetect_trial_score",
				Help: "Validation average precision of the latest trial",
			},
		),
		BestScore: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "robotdetect_best_score",
				Help: "Best validation average precision observed so far",
			},
		),
		StageDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "robotdetect_stage_duration_seconds",
				Help: "Wall time of each pipeline stage in seconds",
			},
			[]string{"stage"},
		),
		FinalMetric: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "robotdetect_final_metric",
				Help: "Held-out evaluation metrics of the final model",
			},
			[]string{"metric"},
		),
		BoostingRounds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "robotdetect_final_trees",
				Help: "Number of boosting rounds kept by the final model",
			},
		),
	}
}

// Registry returns the registry holding the collectors.
func (m *SearchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTrial records one finished trial.
func (m *SearchMetrics) ObserveTrial(state string, score float64, d time.Duration) {
	m.TrialsTotal.WithLabelValues(state).Inc()
	m.TrialDuration.Observe(d.Seconds())
	m.TrialScore.Set(score)
}

// SetBestScore updates the best score gauge.
func (m *SearchMetrics) SetBestScore(score float64) {
	m.BestScore.Set(score)
}

// ObserveStage records the wall time of a pipeline stage.
func (m *SearchMetrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// SetFinalMetric records one held-out metric of the final model.
func (m *SearchMetrics) SetFinalMetric(name string, value float64) {
	m.FinalMetric.WithLabelValues(name).Set(value)
}

// WriteTextfile writes every collector in the Prometheus text format, for
// pickup by a node exporter textfile collector.
func (m *SearchMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return scigoErrors.Wrapf(err, "failed to write metrics to %s", path)
	}
	return nil
}
