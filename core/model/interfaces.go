// Package model defines the estimator contracts shared by the classifier,
// the search pipeline and the dashboard, plus fitted-state bookkeeping and
// gob snapshots.
package model

import (
	"gonum.org/v1/gonum/mat"
)

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// ProbabilisticClassifier is a binary classifier that exposes calibrated
// class probabilities. PredictProba returns an n×2 matrix whose second
// column is the positive-class probability.
type ProbabilisticClassifier interface {
	Fitter
	Predict(X mat.Matrix) (mat.Matrix, error)
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter is the interface for models that expose their parameters.
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ImportanceReporter reports one non-negative score per input feature.
type ImportanceReporter interface {
	FeatureImportance(importanceType string) ([]float64, error)
}

// Persistable is the interface for models that can be saved and loaded.
type Persistable interface {
	SaveToFile(path string) error
}
