package gbdt

import (
	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
)

// TrainingParams contains all training hyperparameters.
// Names follow the xgboost scikit-learn wrapper where one exists.
type TrainingParams struct {
	// Boosting
	NumIterations int     `json:"n_estimators"`
	LearningRate  float64 `json:"learning_rate"`
	MaxDepth      int     `json:"max_depth"`

	// Regularization
	Lambda         float64 `json:"reg_lambda"`
	Alpha          float64 `json:"reg_alpha"`
	Gamma          float64 `json:"gamma"`
	MinChildWeight float64 `json:"min_child_weight"`

	// Sampling
	Subsample       float64 `json:"subsample"`
	ColsampleByTree float64 `json:"colsample_bytree"`

	// Class imbalance: weight applied to positive-class gradients.
	ScalePosWeight float64 `json:"scale_pos_weight"`

	// Histogram
	MaxBin int `json:"max_bin"`

	// Early stopping on the last eval set; 0 disables it.
	EarlyStoppingRounds int `json:"early_stopping_rounds"`

	Seed       uint64 `json:"random_state"`
	NumThreads int    `json:"n_jobs"`
	Verbosity  int    `json:"verbosity"`
}

// DefaultTrainingParams mirrors the xgboost defaults.
func DefaultTrainingParams() TrainingParams {
	return TrainingParams{
		NumIterations:   100,
		LearningRate:    0.3,
		MaxDepth:        6,
		Lambda:          1,
		Alpha:           0,
		Gamma:           0,
		MinChildWeight:  1,
		Subsample:       1,
		ColsampleByTree: 1,
		ScalePosWeight:  1,
		MaxBin:          256,
	}
}

// Validate rejects parameter values the trainer cannot work with.
func (p TrainingParams) Validate() error {
	switch {
	case p.NumIterations < 1:
		return scigoErrors.NewValidationError("n_estimators", "must be >= 1", p.NumIterations)
	case p.LearningRate <= 0:
		return scigoErrors.NewValidationError("learning_rate", "must be > 0", p.LearningRate)
	case p.MaxDepth < 1:
		return scigoErrors.NewValidationError("max_depth", "must be >= 1", p.MaxDepth)
	case p.Lambda < 0:
		return scigoErrors.NewValidationError("reg_lambda", "must be >= 0", p.Lambda)
	case p.Alpha < 0:
		return scigoErrors.NewValidationError("reg_alpha", "must be >= 0", p.Alpha)
	case p.Gamma < 0:
		return scigoErrors.NewValidationError("gamma", "must be >= 0", p.Gamma)
	case p.MinChildWeight < 0:
		return scigoErrors.NewValidationError("min_child_weight", "must be >= 0", p.MinChildWeight)
	case p.Subsample <= 0 || p.Subsample > 1:
		return scigoErrors.NewValidationError("subsample", "must be in (0, 1]", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return scigoErrors.NewValidationError("colsample_bytree", "must be in (0, 1]", p.ColsampleByTree)
	case p.ScalePosWeight <= 0:
		return scigoErrors.NewValidationError("scale_pos_weight", "must be > 0", p.ScalePosWeight)
	case p.MaxBin < 2:
		return scigoErrors.NewValidationError("max_bin", "must be >= 2", p.MaxBin)
	case p.EarlyStoppingRounds < 0:
		return scigoErrors.NewValidationError("early_stopping_rounds", "must be >= 0", p.EarlyStoppingRounds)
	}
	return nil
}

// ToMap returns the parameters keyed by their wire names.
func (p TrainingParams) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":          p.NumIterations,
		"learning_rate":         p.LearningRate,
		"max_depth":             p.MaxDepth,
		"reg_lambda":            p.Lambda,
		"reg_alpha":             p.Alpha,
		"gamma":                 p.Gamma,
		"min_child_weight":      p.MinChildWeight,
		"subsample":             p.Subsample,
		"colsample_bytree":      p.ColsampleByTree,
		"scale_pos_weight":      p.ScalePosWeight,
		"max_bin":               p.MaxBin,
		"early_stopping_rounds": p.EarlyStoppingRounds,
		"random_state":          p.Seed,
	}
}
