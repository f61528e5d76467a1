package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/YuminosukeSato/robotdetect/metrics"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func sampleArtifacts() Artifacts {
	return Artifacts{
		ClassNames: [2]string{"Human", "Robot"},
		Confusion:  metrics.Confusion{{170, 10}, {3, 17}},
		ROC: []metrics.ROCPoint{
			{FPR: 0, TPR: 0, Threshold: 2},
			{FPR: 0.05, TPR: 0.8, Threshold: 0.7},
			{FPR: 1, TPR: 1, Threshold: 0.01},
		},
		AUC: 0.93,
		PR: []metrics.PRPoint{
			{Precision: 1, Recall: 0.5, Threshold: 0.9},
			{Precision: 0.6, Recall: 1, Threshold: 0.2},
		},
		AveragePrecision: 0.8,
		TopFeatures: gbdt.RankedImportance{
			{Name: "PAGES", Score: 0.5},
			{Name: "DURATION", Score: 0.3},
			{Name: "IMAGES", Score: 0.2},
		},
	}
}

func TestRenderAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	paths, err := RenderAll(dir, sampleArtifacts())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{ConfusionMatrixFile, ROCCurveFile, PRCurveFile, TopFeaturesFile}
	if len(paths) != len(want) {
		t.Fatalf("got %d paths, want %d", len(paths), len(want))
	}
	for i, name := range want {
		if filepath.Base(paths[i]) != name {
			t.Errorf("path %d = %s, want %s", i, paths[i], name)
		}
		data, err := os.ReadFile(paths[i])
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.HasPrefix(data, pngMagic) {
			t.Errorf("%s is not a PNG", name)
		}
	}
}

func TestRenderRejectsEmptyInputs(t *testing.T) {
	dir := t.TempDir()
	if err := RenderROC(filepath.Join(dir, "roc.png"), nil, 0); err == nil {
		t.Error("expected error for empty ROC curve")
	}
	if err := RenderPR(filepath.Join(dir, "pr.png"), nil, 0); err == nil {
		t.Error("expected error for empty PR curve")
	}
	if err := RenderTopFeatures(filepath.Join(dir, "top.png"), nil); err == nil {
		t.Error("expected error for empty importance list")
	}

	a := sampleArtifacts()
	a.TopFeatures = nil
	paths, err := RenderAll(dir, a)
	if err == nil {
		t.Fatal("expected RenderAll to fail")
	}
	if len(paths) != 3 {
		t.Errorf("charts rendered before the failure = %d, want 3", len(paths))
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	in := map[string]float64{"average_precision": 0.8}
	if err := WriteJSON(path, in); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]float64
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out["average_precision"] != 0.8 {
		t.Errorf("round trip = %v", out)
	}
}
