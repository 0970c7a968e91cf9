// Standard attribute keys. Keys are hierarchical ("model.name",
// "data.samples") so log pipelines can filter by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model, e.g. "GBDTClassifier".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "explain", "cross_validate".
	OperationKey = "ml.operation"

	// ComponentKey identifies which component emitted the record.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"

	// RunIDKey identifies a training run in the registry.
	RunIDKey = "run.id"
)

// Data Shape
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	PositiveKey = "data.positives"
	DatasetKey  = "data.path"
)

// Training and Evaluation
const (
	DurationMsKey   = "perf.duration_ms"
	AccuracyKey     = "metrics.accuracy"
	PrecisionKey    = "metrics.precision"
	RecallKey       = "metrics.recall"
	F1Key           = "metrics.f1"
	AUCKey          = "metrics.auc"
	LossKey         = "metrics.loss"
	IterationKey    = "training.iteration"
	FoldKey         = "cv.fold"
	NumFoldsKey     = "cv.folds"
	LearningRateKey = "hyperparams.learning_rate"
	RandomSeedKey   = "config.random_seed"
)

// Inference
const (
	// RequestIDKey carries the X-Request-ID of an HTTP request.
	RequestIDKey = "http.request_id"

	ProbabilityKey = "preds.probability"
	RiskLevelKey   = "preds.risk_level"

	// ArtifactPathKey is the model artifact file being loaded or written.
	ArtifactPathKey = "artifact.path"

	// ChecksumKey is the SHA-256 of an artifact payload.
	ChecksumKey = "artifact.checksum"
)

// Error Context
const (
	ErrorTypeKey  = "error.type"
	StacktraceKey = "error.stacktrace"
)

// Standard attribute value constants.
const (
	OperationFit           = "fit"
	OperationPredict       = "predict"
	OperationExplain       = "explain"
	OperationCrossValidate = "cross_validate"
	OperationLoad          = "load"
	OperationSave          = "save"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseInference  = "inference"
)
