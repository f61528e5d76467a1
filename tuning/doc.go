// Package tuning implements sequential model-based hyperparameter search.
//
// A Space declares the domain of every hyperparameter. A Sampler proposes
// Configurations inside it, and a Study drives the loop: propose, validate,
// evaluate, record, observe. TPESampler is a tree-structured Parzen
// estimator seeded for reproducible searches; RandomSampler draws uniformly.
//
//	space := tuning.BoosterSpace()
//	study := tuning.NewStudy(space, tuning.NewTPESampler(42))
//	err := study.Optimize(ctx, func(ctx context.Context, trial int, cfg tuning.Configuration) (float64, error) {
//	    return evaluate(cfg)
//	}, 50)
//	best, err := study.BestTrial()
//
// Trial history can additionally be persisted through a Storage; an
// in-memory and a SQLite implementation are provided.
package tuning
