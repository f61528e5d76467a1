// Package robotdetect classifies web sessions as human or robot traffic with
// a gradient-boosted tree ensemble tuned by Tree-structured Parzen Estimator
// search.
//
// The module is organised as a pipeline of small packages:
//
//   - dataset: delimited-text reading into a typed column frame
//   - preprocessing: column filtering, median imputation, deduplication and
//     the stratified train/test split
//   - sklearn/gbdt: the histogram gradient booster, its JSON model format and
//     TreeSHAP explanations
//   - tuning: the search space, TPE sampler, study loop and trial storage
//   - pipeline: trial evaluation, search, final training and the end-to-end run
//   - metrics: classification report, ROC and precision-recall curves
//   - report: PNG charts of the final evaluation
//   - observability: Prometheus metrics and OpenTelemetry tracing
//   - dashboard: cached inputs and per-sample explanations for interactive use
//   - config: YAML configuration with environment expansion
//
// # Quick Start
//
// The robotdetect command runs the full pipeline with the configuration named
// by ROBOTDETECT_CONFIG:
//
//	ROBOTDETECT_CONFIG=robotdetect.yaml go run ./cmd/robotdetect
//
// The same run from Go:
//
//	cfg, err := config.Load("robotdetect.yaml")
//	if err != nil {
//	    return err
//	}
//	res, err := pipeline.Run(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Final.Evaluation.Report)
//
// # Outputs
//
// A run writes the trained model as JSON, metrics.json with the held-out
// evaluation, study.json with every trial, four PNG charts and a Prometheus
// textfile to the configured output directory.
//
// # Error Handling
//
// Errors carry stack traces via github.com/cockroachdb/errors. Typed errors in
// pkg/errors distinguish invalid input, configurations outside the search
// space and failed trials.
package robotdetect
