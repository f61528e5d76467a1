package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator, e.g. "GBClassifier".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "prepare", "search", "finalize"
	OperationKey = "ml.operation"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey      = "data.samples"
	FeaturesKey     = "data.features"
	TrainSamplesKey = "data.train_samples"
	TestSamplesKey  = "data.test_samples"
	PositivesKey    = "data.positives"
	NegativesKey    = "data.negatives"
	DroppedColsKey  = "data.dropped_columns"
	DuplicatesKey   = "data.duplicates_removed"
	PathKey         = "data.path"
)

// Training progress and metrics.
const (
	IterationKey     = "training.iteration"
	BestIterationKey = "training.best_iteration"
	LossKey          = "metrics.loss"
	PRAUCKey         = "metrics.pr_auc"
	ROCAUCKey        = "metrics.roc_auc"
	AccuracyKey      = "metrics.accuracy"
	DurationMsKey    = "perf.duration_ms"
)

// Hyperparameter search.
const (
	StudyIDKey        = "search.study_id"
	TrialNumberKey    = "search.trial"
	TrialScoreKey     = "search.score"
	TrialStateKey     = "search.state"
	BestScoreKey      = "search.best_score"
	BestTrialKey      = "search.best_trial"
	HyperParamsKey    = "model.hyperparams"
	SamplerKey        = "search.sampler"
	RandomSeedKey     = "config.random_seed"
	CacheKeyKey       = "cache.fingerprint"
	ScalePosWeightKey = "hyperparams.scale_pos_weight"
)

// Error context.
const (
	ErrorTypeKey  = "error.type"
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationPrepare  = "prepare"
	OperationSearch   = "search"
	OperationFinalize = "finalize"
	OperationExplain  = "explain"

	PhasePreprocessing = "preprocessing"
	PhaseSearch        = "search"
	PhaseTraining      = "training"
	PhaseEvaluation    = "evaluation"
	PhaseDashboard     = "dashboard"
)
