package pipeline

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/tuning"
)

func TestScalePosWeight(t *testing.T) {
	tests := []struct {
		name    string
		y       []float64
		want    float64
		wantErr bool
	}{
		{"imbalanced", []float64{0, 0, 0, 1}, 3, false},
		{"balanced", []float64{0, 1, 1, 0}, 1, false},
		{"single class", []float64{0, 0, 0}, 0, true},
		{"non binary", []float64{0, 2, 1}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScalePosWeight(mat.NewVecDense(len(tt.y), tt.y))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ScalePosWeight() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ScalePosWeight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrainingParamsMapping(t *testing.T) {
	opts := EvalOptions{EarlyStoppingRounds: 50, Seed: 7, MaxBin: 64}
	p := TrainingParams(fixedConfig(), 9, opts)

	if p.NumIterations != 100 || p.MaxDepth != 3 {
		t.Errorf("trees/depth = %d/%d", p.NumIterations, p.MaxDepth)
	}
	if p.LearningRate != 0.1 || p.Subsample != 0.8 || p.ColsampleByTree != 0.8 {
		t.Errorf("rate/subsample = %v/%v/%v", p.LearningRate, p.Subsample, p.ColsampleByTree)
	}
	if p.Gamma != 0 || p.Lambda != 1 || p.Alpha != 0 {
		t.Errorf("regularisation = %v/%v/%v", p.Gamma, p.Lambda, p.Alpha)
	}
	if p.ScalePosWeight != 9 || p.EarlyStoppingRounds != 50 || p.Seed != 7 || p.MaxBin != 64 {
		t.Errorf("fixed settings = %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("mapped params invalid: %v", err)
	}
}

func TestEvaluateTwoClusters(t *testing.T) {
	xTrain, yTrain := twoClusters(400, 4, 0.1, 1.5, 1)
	xVal, yVal := twoClusters(100, 4, 0.1, 1.5, 2)

	score, err := Evaluate(context.Background(), fixedConfig(), xTrain, yTrain, xVal, yVal, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	if score < 0.9 || score > 1 {
		t.Errorf("validation average precision = %v, want in [0.9, 1]", score)
	}
}

func TestEvaluateSeparable(t *testing.T) {
	xTrain, yTrain := twoClusters(300, 3, 0.3, 5, 3)
	xVal, yVal := twoClusters(100, 3, 0.3, 5, 4)

	score, err := Evaluate(context.Background(), fixedConfig(), xTrain, yTrain, xVal, yVal, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	if score <= 0.95 {
		t.Errorf("score on separable data = %v, want > 0.95", score)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	xTrain, yTrain := twoClusters(300, 4, 0.2, 0.7, 5)
	xVal, yVal := twoClusters(100, 4, 0.2, 0.7, 6)

	a, err := Evaluate(context.Background(), fixedConfig(), xTrain, yTrain, xVal, yVal, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Evaluate(context.Background(), fixedConfig(), xTrain, yTrain, xVal, yVal, fastEvalOptions())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("scores differ: %v vs %v", a, b)
	}
}

func TestEvaluateFailuresAreTrialFailures(t *testing.T) {
	xTrain, yTrain := twoClusters(100, 2, 0.2, 2, 7)
	xVal, yVal := twoClusters(50, 2, 0.2, 2, 8)

	tests := []struct {
		name   string
		cfg    tuning.Configuration
		yTrain *mat.VecDense
		xVal   mat.Matrix
	}{
		{"single class labels", fixedConfig(), mat.NewVecDense(100, nil), xVal},
		{"invalid learning rate", fixedConfig().With(tuning.ParamLearningRate, -1.0), yTrain, xVal},
		{"feature mismatch", fixedConfig(), yTrain, mat.NewDense(50, 3, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := fastEvalOptions()
			opts.Trial = 4
			score, err := Evaluate(context.Background(), tt.cfg, xTrain, tt.yTrain, tt.xVal, yVal, opts)
			if err == nil {
				t.Fatal("expected an error")
			}
			if score != 0 || math.IsNaN(score) {
				t.Errorf("failed trial score = %v, want 0", score)
			}
			var tf *scigoErrors.TrialFailedError
			if !scigoErrors.As(err, &tf) {
				t.Fatalf("error %v is not a TrialFailedError", err)
			}
			if tf.Trial != 4 {
				t.Errorf("trial = %d, want 4", tf.Trial)
			}
		})
	}
}
