package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/robotdetect/config"
	"github.com/YuminosukeSato/robotdetect/report"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

// writeSessionsCSV writes n synthetic sessions, 10% robots, with the
// denylisted columns, a sparse column, a categorical column and a few
// missing cells.
func writeSessionsCSV(t *testing.T, path string, n int) {
	t.Helper()
	r := rand.New(rand.NewPCG(99, 100))
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"ID", "UNASSIGNED", "WIDTH", "PENALTY", "PAGES", "DURATION", "NIGHT", "BROWSER", "SPARSE", "ROBOT"}
	if err := w.Write(header); err != nil {
		t.Fatal(err)
	}
	num := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i := 0; i < n; i++ {
		robot := i%10 == 0
		shift := 0.0
		label := "0"
		if robot {
			shift = 2.5
			label = "1"
		}
		pages := num(10 + 3*shift + 2*r.NormFloat64())
		if i%17 == 5 {
			pages = ""
		}
		sparse := ""
		if i%2 == 0 {
			sparse = num(r.Float64())
		}
		browser := []string{"chrome", "firefox", "safari"}[i%3]
		record := []string{
			strconv.Itoa(i), num(r.Float64()), num(r.Float64()), num(r.Float64()),
			pages,
			num(shift + r.NormFloat64()),
			num(r.Float64()),
			browser,
			sparse,
			label,
		}
		if err := w.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatal(err)
	}
}

func positiveShare(y *mat.VecDense) float64 {
	return mat.Sum(y) / float64(y.Len())
}

func TestRunEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.csv")
	writeSessionsCSV(t, dataPath, 1000)

	cfg := config.Default()
	cfg.Data.Path = dataPath
	cfg.Output.Dir = filepath.Join(dir, "results")
	cfg.Search.Trials = 3
	cfg.Search.StartupTrials = 2
	cfg.Search.Storage = filepath.Join(dir, "study.db")
	cfg.Training.EarlyStoppingRounds = 10
	cfg.Training.MaxBin = 64

	res, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}

	split := res.Split
	if split.XTrain.RawMatrix().Rows != 800 || split.XTest.RawMatrix().Rows != 200 {
		t.Errorf("split sizes = %d/%d, want 800/200", split.XTrain.RawMatrix().Rows, split.XTest.RawMatrix().Rows)
	}
	for name, y := range map[string]*mat.VecDense{"train": split.YTrain, "test": split.YTest} {
		if share := positiveShare(y); math.Abs(share-0.1) > 0.01 {
			t.Errorf("%s positive share = %v, want 0.1 +- 0.01", name, share)
		}
	}
	for _, dropped := range []string{"ID", "UNASSIGNED", "WIDTH", "PENALTY", "SPARSE"} {
		if slices.Contains(split.FeatureNames, dropped) {
			t.Errorf("column %s should have been dropped", dropped)
		}
	}
	if !slices.Equal(split.FeatureNames, []string{"PAGES", "DURATION", "NIGHT", "BROWSER"}) {
		t.Errorf("features = %v", split.FeatureNames)
	}

	if err := tuning.BoosterSpace().Validate(res.Best); err != nil {
		t.Errorf("best configuration out of domain: %v", err)
	}
	if len(res.Study.Trials()) != 3 {
		t.Errorf("trials = %d, want 3", len(res.Study.Trials()))
	}
	if got := testutil.ToFloat64(res.Metrics.TrialsTotal.WithLabelValues("complete")); got != 3 {
		t.Errorf("complete trials metric = %v", got)
	}

	eval := res.Final.Evaluation
	if eval.Confusion.Total() != 200 {
		t.Errorf("confusion total = %d, want 200", eval.Confusion.Total())
	}
	if eval.AveragePrecision < 0 || eval.AveragePrecision > 1 {
		t.Errorf("average precision = %v", eval.AveragePrecision)
	}

	out := cfg.Output.Dir
	for _, name := range []string{
		cfg.Output.Model, MetricsFile, StudyFile, PrometheusFile,
		report.ConfusionMatrixFile, report.ROCCurveFile, report.PRCurveFile, report.TopFeaturesFile,
	} {
		info, err := os.Stat(filepath.Join(out, name))
		if err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("artifact %s is empty", name)
		}
	}
	if len(res.Artifacts) != 8 {
		t.Errorf("artifacts = %v", res.Artifacts)
	}

	model, err := gbdt.LoadModel(filepath.Join(out, cfg.Output.Model))
	if err != nil {
		t.Fatal(err)
	}
	proba, err := model.PredictProba(split.XTest)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < split.XTest.RawMatrix().Rows; i++ {
		if got, want := proba.At(i, 1), res.Final.Probabilities.AtVec(i); got != want {
			t.Fatalf("row %d: reloaded model predicts %v, want %v", i, got, want)
		}
	}

	data, err := os.ReadFile(filepath.Join(out, MetricsFile))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"classification_report", "confusion_matrix", "roc_auc", "average_precision", "top_features", "params"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("metrics.json missing %q", key)
		}
	}

	storage, err := tuning.NewSQLiteStorage(cfg.Search.Storage)
	if err != nil {
		t.Fatal(err)
	}
	defer storage.Close()
	stored, err := storage.LoadTrials(context.Background(), res.Study.ID())
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Errorf("stored trials = %d, want 3", len(stored))
	}
}

func TestRunMissingInput(t *testing.T) {
	cfg := config.Default()
	cfg.Data.Path = filepath.Join(t.TempDir(), "missing.csv")
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Error("expected error for missing input file")
	}
}

func TestRunMissingTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	writeSessionsCSV(t, path, 50)

	cfg := config.Default()
	cfg.Data.Path = path
	cfg.Data.Target = "BOT"
	cfg.Output.Dir = filepath.Join(dir, "results")
	_, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error for missing target column")
	}
	if _, statErr := os.Stat(cfg.Output.Dir); !os.IsNotExist(statErr) {
		t.Errorf("no artifacts expected after a failed run, stat err = %v", statErr)
	}
}
