package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSearchMetricsTrials(t *testing.T) {
	m := NewSearchMetrics()
	m.ObserveTrial("complete", 0.8, 2*time.Second)
	m.ObserveTrial("complete", 0.9, time.Second)
	m.ObserveTrial("failed", 0, 10*time.Millisecond)
	m.SetBestScore(0.9)

	expected := `
		# HELP robotdetect_trials_total Total number of search trials by terminal state
		# TYPE robotdetect_trials_total counter
		robotdetect_trials_total{state="complete"} 2
		robotdetect_trials_total{state="failed"} 1
	`
	if err := testutil.CollectAndCompare(m.TrialsTotal, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected metric value: %v", err)
	}
	if got := testutil.ToFloat64(m.BestScore); got != 0.9 {
		t.Errorf("best score = %v, want 0.9", got)
	}
	if got := testutil.ToFloat64(m.TrialScore); got != 0 {
		t.Errorf("latest trial score = %v, want 0", got)
	}
	if count := testutil.CollectAndCount(m.TrialDuration); count != 1 {
		t.Errorf("expected 1 histogram, got %d", count)
	}
}

func TestSearchMetricsIsolatedRegistries(t *testing.T) {
	a, b := NewSearchMetrics(), NewSearchMetrics()
	a.SetFinalMetric("roc_auc", 0.97)
	if got := testutil.ToFloat64(a.FinalMetric.WithLabelValues("roc_auc")); got != 0.97 {
		t.Errorf("roc_auc = %v", got)
	}
	if count := testutil.CollectAndCount(b.FinalMetric); count != 0 {
		t.Errorf("second registry should be empty, got %d series", count)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := NewSearchMetrics()
	m.ObserveStage("search", 1500*time.Millisecond)
	m.SetFinalMetric("average_precision", 0.88)
	m.BoostingRounds.Set(120)

	path := filepath.Join(t.TempDir(), "metrics.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`robotdetect_stage_duration_seconds{stage="search"} 1.5`,
		`robotdetect_final_metric{metric="average_precision"} 0.88`,
		`robotdetect_final_trees 120`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestWriteTextfileBadPath(t *testing.T) {
	m := NewSearchMetrics()
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "metrics.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}
