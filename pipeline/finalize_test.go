package pipeline

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/YuminosukeSato/robotdetect/observability"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

func TestFinalize(t *testing.T) {
	xTrain, yTrain := twoClusters(400, 4, 0.1, 1.5, 21)
	xTest, yTest := twoClusters(100, 4, 0.1, 1.5, 22)
	opts := fastEvalOptions()
	opts.FeatureNames = []string{"PAGES", "DURATION", "NIGHT", "IMAGES"}

	res, err := Finalize(context.Background(), fixedConfig(), xTrain, yTrain, xTest, yTest, opts)
	if err != nil {
		t.Fatal(err)
	}
	eval := res.Evaluation

	if eval.Confusion.Total() != yTest.Len() {
		t.Errorf("confusion total = %d, want %d", eval.Confusion.Total(), yTest.Len())
	}
	if eval.Report.Classes[0].Support != 90 || eval.Report.Classes[1].Support != 10 {
		t.Errorf("supports = %d/%d", eval.Report.Classes[0].Support, eval.Report.Classes[1].Support)
	}
	if eval.Report.ClassNames != ClassNames {
		t.Errorf("class names = %v", eval.Report.ClassNames)
	}
	if eval.AUC < 0.9 || eval.AveragePrecision < 0.9 {
		t.Errorf("AUC/AP = %v/%v, want >= 0.9", eval.AUC, eval.AveragePrecision)
	}
	if eval.ScalePosWeight != 9 {
		t.Errorf("scale_pos_weight = %v, want 9", eval.ScalePosWeight)
	}
	if eval.NumTrees < 1 || eval.NumTrees > 100 {
		t.Errorf("n_trees = %d", eval.NumTrees)
	}
	if len(eval.TopFeatures) == 0 || len(eval.TopFeatures) > 4 {
		t.Errorf("top features = %v", eval.TopFeatures)
	}
	for i := 1; i < len(eval.TopFeatures); i++ {
		if eval.TopFeatures[i].Score > eval.TopFeatures[i-1].Score {
			t.Errorf("importance not descending: %v", eval.TopFeatures)
		}
	}
	if res.Predictions.Len() != yTest.Len() || res.Probabilities.Len() != yTest.Len() {
		t.Error("prediction lengths do not match the test set")
	}
	if _, ok := res.Classifier.EvalHistory()["train-logloss"]; !ok {
		t.Error("training split is not monitored")
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	xTrain, yTrain := twoClusters(300, 3, 0.2, 0.8, 23)
	xTest, yTest := twoClusters(80, 3, 0.2, 0.8, 24)

	a, err := Finalize(context.Background(), fixedConfig(), xTrain, yTrain, xTest, yTest, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Finalize(context.Background(), fixedConfig(), xTrain, yTrain, xTest, yTest, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Evaluation, b.Evaluation) {
		t.Error("evaluations differ between identical runs")
	}

	var bufA, bufB bytes.Buffer
	if err := a.Model.WriteJSON(&bufA); err != nil {
		t.Fatal(err)
	}
	if err := b.Model.WriteJSON(&bufB); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Error("serialised models differ between identical runs")
	}
}

func TestFinalizeRejectsOutOfDomainConfig(t *testing.T) {
	xTrain, yTrain := twoClusters(50, 2, 0.2, 1, 25)
	xTest, yTest := twoClusters(20, 2, 0.2, 1, 26)

	cfg := fixedConfig().With(tuning.ParamMaxDepth, 42)
	_, err := Finalize(context.Background(), cfg, xTrain, yTrain, xTest, yTest, fastEvalOptions())
	var domErr *scigoErrors.ConfigurationDomainError
	if !scigoErrors.As(err, &domErr) {
		t.Fatalf("error = %v, want ConfigurationDomainError", err)
	}
	if domErr.Param != tuning.ParamMaxDepth {
		t.Errorf("param = %s", domErr.Param)
	}
}

func TestPipelineSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	exporter := tracetest.NewInMemoryExporter()
	_, shutdown := observability.NewTracer(observability.TraceConfig{Exporter: exporter})
	defer func() { _ = shutdown(context.Background()) }()

	xTrain, yTrain := twoClusters(100, 2, 0.2, 2, 27)
	xTest, yTest := twoClusters(40, 2, 0.2, 2, 28)
	if _, _, err := Search(context.Background(), xTrain, yTrain, xTest, yTest, 2, 3, fastSearch()...); err != nil {
		t.Fatal(err)
	}
	if _, err := Finalize(context.Background(), fixedConfig(), xTrain, yTrain, xTest, yTest, fastEvalOptions()); err != nil {
		t.Fatal(err)
	}

	counts := map[string]int{}
	for _, s := range exporter.GetSpans() {
		counts[s.Name]++
	}
	if counts["pipeline.Search"] != 1 || counts["pipeline.Evaluate"] != 2 || counts["pipeline.Finalize"] != 1 {
		t.Errorf("span counts = %v", counts)
	}
}
