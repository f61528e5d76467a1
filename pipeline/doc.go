/*
Package pipeline wires data preparation, hyperparameter search and final
training into the robot detection workflow.

Evaluate scores one configuration by validation average precision. Search
drives a TPE study over the booster space with Evaluate as the objective.
Finalize retrains the best configuration and produces the held-out
evaluation. Run performs the whole workflow from a config.Config and writes
the artifacts.

	split, _ := preprocessing.Prepare(frame, "ROBOT", preprocessing.DefaultPrepareOptions())
	best, study, err := pipeline.Search(ctx, split.XTrain, split.YTrain, split.XTest, split.YTest, 50, 42)
	final, err := pipeline.Finalize(ctx, best, split.XTrain, split.YTrain, split.XTest, split.YTest, pipeline.DefaultEvalOptions())
	fmt.Println(final.Evaluation.Report)
*/
package pipeline
