// Package gbdt implements histogram-based gradient boosted decision trees for
// binary classification.
//
// The booster follows xgboost semantics for its hyperparameters: depthwise
// trees limited by max_depth, L1/L2 penalised leaf weights, gamma pruning,
// per-tree row and column subsampling, scale_pos_weight for imbalanced
// targets, and early stopping on the last eval set.
//
// # Basic Usage
//
//	clf := gbdt.NewGBClassifier().
//	    WithNumIterations(300).
//	    WithMaxDepth(6).
//	    WithScalePosWeight(9).
//	    WithEarlyStopping(50)
//
//	err := clf.FitWithEval(XTrain, yTrain, []gbdt.EvalSet{
//	    {Name: "validation_0", X: XVal, Y: yVal},
//	})
//	proba, err := clf.PredictProba(XTest) // n x 2
//
// # Persistence
//
// Models are stored as JSON with the exact tree structure:
//
//	err := clf.Model().SaveToFile("best_model.json")
//	model, err := gbdt.LoadModel("best_model.json")
//
// # Explanations
//
// TreeSHAP computes exact SHAP values in log-odds space:
//
//	shap := gbdt.NewTreeSHAP(model)
//	values, err := shap.CalculateSHAP(X)
package gbdt
