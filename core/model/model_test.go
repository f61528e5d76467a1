package model

import (
	"bytes"
	"path/filepath"
	"testing"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

func TestStateManagerLifecycle(t *testing.T) {
	s := NewStateManager("GBClassifier")
	err := s.RequireFitted("Predict")
	var nf *scigoErrors.NotFittedError
	if !scigoErrors.As(err, &nf) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if nf.ModelName != "GBClassifier" || nf.Method != "Predict" {
		t.Errorf("unexpected error fields %+v", nf)
	}

	s.MarkFitted(4, 100)
	if err := s.RequireFitted("Predict"); err != nil {
		t.Errorf("unexpected error after MarkFitted: %v", err)
	}
	if err := s.RequireFeatures("Predict", 3); err == nil {
		t.Error("expected dimension error")
	}
	if f, n := s.GetDimensions(); f != 4 || n != 100 {
		t.Errorf("dimensions = (%d,%d)", f, n)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear fitted flag")
	}
}

type snapshot struct {
	Names []string
	Rows  [][]float64
}

func TestGobRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.gob")
	in := snapshot{Names: []string{"a", "b"}, Rows: [][]float64{{1, 2}, {3, 4}}}
	if err := SaveGob(in, path); err != nil {
		t.Fatal(err)
	}
	var out snapshot
	if err := LoadGob(&out, path); err != nil {
		t.Fatal(err)
	}
	if len(out.Rows) != 2 || out.Rows[1][0] != 3 || out.Names[1] != "b" {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestLoadGobFromReaderRejectsGarbage(t *testing.T) {
	var out snapshot
	if err := LoadGobFromReader(&out, bytes.NewBufferString("not gob")); err == nil {
		t.Error("expected decode error")
	}
}
