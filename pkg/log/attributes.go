// Standard attribute keys shared by every component. They follow a
// hierarchical naming convention ("model.name", "data.samples") so that log
// records from training runs and prediction requests can be filtered the same
// way.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of estimator.
	// Examples: "GradientBoostingRegressor", "TargetEncoder", "Pipeline"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is logging.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of the model lifecycle.
	PhaseKey = "ml.phase"
)

// Training run context
const (
	// RunIDKey identifies a single training run. Every record emitted by the
	// orchestrator during one run carries the same value.
	RunIDKey = "run.id"

	// StateKey is the orchestrator state a record was emitted from.
	StateKey = "run.state"

	// DataSourceKey is the type tag of the data source in use ("csv", "sqlite").
	DataSourceKey = "data.source"

	// ArtifactPathKey is the file an artifact was written to or read from.
	ArtifactPathKey = "artifact.path"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// CategoricalKey lists the categorical columns being encoded.
	CategoricalKey = "data.categorical"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records the training loss at some iteration.
	LossKey = "metrics.loss"

	// MAEKey, MAPEKey and RMSEKey record the evaluation metrics of a run.
	MAEKey  = "metrics.mae"
	MAPEKey = "metrics.mape"
	RMSEKey = "metrics.rmse"

	// IterationKey records the current boosting stage.
	IterationKey = "training.iteration"
)

// Prediction context
const (
	// PredsKey indicates the number of predictions made.
	PredsKey = "preds.count"

	// PredictionKey records a single predicted value.
	PredictionKey = "preds.value"

	// CacheHitKey reports whether a prediction was served from the cache.
	CacheHitKey = "preds.cache_hit"
)

// Error Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the boosting learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"

	PhaseTraining   = "training"
	PhaseEvaluation = "evaluation"
	PhaseInference  = "inference"
)
