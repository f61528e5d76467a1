package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/observability"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

func TestSearchDeterministicAndInDomain(t *testing.T) {
	xTrain, yTrain := twoClusters(200, 3, 0.2, 1, 11)
	xVal, yVal := twoClusters(60, 3, 0.2, 1, 12)

	run := func() (tuning.Configuration, []tuning.TrialResult) {
		best, study, err := Search(context.Background(), xTrain, yTrain, xVal, yVal, 5, 42, fastSearch()...)
		if err != nil {
			t.Fatal(err)
		}
		return best, study.Trials()
	}
	bestA, trialsA := run()
	bestB, trialsB := run()

	if !bestA.Equal(bestB) {
		t.Errorf("best configurations differ:\n%s\n%s", bestA.Describe(), bestB.Describe())
	}
	if len(trialsA) != 5 || len(trialsB) != 5 {
		t.Fatalf("trial counts = %d, %d", len(trialsA), len(trialsB))
	}
	space := tuning.BoosterSpace()
	for i := range trialsA {
		if trialsA[i].Score != trialsB[i].Score {
			t.Errorf("trial %d score differs: %v vs %v", i, trialsA[i].Score, trialsB[i].Score)
		}
		if err := space.Validate(trialsA[i].Config); err != nil {
			t.Errorf("trial %d out of domain: %v", i, err)
		}
		if s := trialsA[i].Score; s < 0 || s > 1 {
			t.Errorf("trial %d score %v outside [0, 1]", i, s)
		}
	}
}

func TestSearchBestIsMaximum(t *testing.T) {
	xTrain, yTrain := twoClusters(200, 3, 0.2, 1, 13)
	xVal, yVal := twoClusters(60, 3, 0.2, 1, 14)

	m := observability.NewSearchMetrics()
	best, study, err := Search(context.Background(), xTrain, yTrain, xVal, yVal, 4, 1, append(fastSearch(), WithMetrics(m))...)
	if err != nil {
		t.Fatal(err)
	}
	bestTrial, err := study.BestTrial()
	if err != nil {
		t.Fatal(err)
	}
	if !best.Equal(bestTrial.Config) {
		t.Error("returned configuration is not the best trial's")
	}
	for _, tr := range study.Trials() {
		if tr.Score > bestTrial.Score || (tr.Score == bestTrial.Score && tr.Number < bestTrial.Number) {
			t.Errorf("trial %d (%v) beats best trial %d (%v)", tr.Number, tr.Score, bestTrial.Number, bestTrial.Score)
		}
	}
	if got := testutil.ToFloat64(m.TrialsTotal.WithLabelValues(string(tuning.TrialComplete))); got != 4 {
		t.Errorf("completed trials metric = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.BestScore); got != bestTrial.Score {
		t.Errorf("best score metric = %v, want %v", got, bestTrial.Score)
	}
}

func TestSearchAllTrialsFail(t *testing.T) {
	xTrain, _ := twoClusters(50, 2, 0.2, 1, 15)
	xVal, yVal := twoClusters(20, 2, 0.2, 1, 16)
	single := mat.NewVecDense(50, nil)

	_, study, err := Search(context.Background(), xTrain, single, xVal, yVal, 3, 1, fastSearch()...)
	if !scigoErrors.Is(err, scigoErrors.ErrNoTrials) {
		t.Fatalf("error = %v, want ErrNoTrials", err)
	}
	for _, tr := range study.Trials() {
		if tr.State != tuning.TrialFailed || tr.Score != 0 {
			t.Errorf("trial %d = %s/%v, want failed/0", tr.Number, tr.State, tr.Score)
		}
	}
	if len(study.Trials()) != 3 {
		t.Errorf("trials = %d, want 3", len(study.Trials()))
	}
}

func TestSearchHonoursCancellation(t *testing.T) {
	xTrain, yTrain := twoClusters(50, 2, 0.2, 1, 17)
	xVal, yVal := twoClusters(20, 2, 0.2, 1, 18)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, study, err := Search(ctx, xTrain, yTrain, xVal, yVal, 3, 1, fastSearch()...)
	if !scigoErrors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(study.Trials()) != 0 {
		t.Errorf("trials run after cancellation = %d", len(study.Trials()))
	}
}
