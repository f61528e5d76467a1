// Package report renders evaluation artifacts of the final model: PNG charts
// drawn with gonum/plot and JSON documents.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/robotdetect/metrics"
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/sklearn/gbdt"
)

// Artifact file names written by RenderAll.
const (
	ConfusionMatrixFile = "confusion_matrix.png"
	ROCCurveFile        = "roc_curve.png"
	PRCurveFile         = "pr_curve.png"
	TopFeaturesFile     = "top10_features.png"
)

// Artifacts is everything RenderAll draws.
type Artifacts struct {
	ClassNames       [2]string
	Confusion        metrics.Confusion
	ROC              []metrics.ROCPoint
	AUC              float64
	PR               []metrics.PRPoint
	AveragePrecision float64
	TopFeatures      gbdt.RankedImportance
}

// RenderAll writes the four evaluation charts into dir and returns their
// paths. dir is created when missing.
func RenderAll(dir string, a Artifacts) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to create %s", dir)
	}
	steps := []struct {
		file   string
		render func(path string) error
	}{
		{ConfusionMatrixFile, func(p string) error { return RenderConfusionMatrix(p, a.Confusion, a.ClassNames) }},
		{ROCCurveFile, func(p string) error { return RenderROC(p, a.ROC, a.AUC) }},
		{PRCurveFile, func(p string) error { return RenderPR(p, a.PR, a.AveragePrecision) }},
		{TopFeaturesFile, func(p string) error { return RenderTopFeatures(p, a.TopFeatures) }},
	}

	logger := log.GetLoggerWithName("report")
	paths := make([]string, 0, len(steps))
	for _, s := range steps {
		path := filepath.Join(dir, s.file)
		render := func() error { return s.render(path) }
		if err := scigoErrors.SafeExecute("report."+s.file, render); err != nil {
			return paths, scigoErrors.Wrapf(err, "failed to render %s", s.file)
		}
		logger.Debug("Rendered artifact", log.PathKey, path)
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return scigoErrors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return scigoErrors.Wrapf(err, "failed to create %s", dir)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return scigoErrors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}
