// Package log defines standard attribute keys for annotation pipeline operations.
//
// This file contains predefined attribute keys that provide consistency across
// all logging operations. Using these standard keys enables better log analysis
// of prediction and training runs.
//
// The attributes are organized into categories:
//   - Model and Operation Context
//   - Data Shape and Characteristics
//   - Training Progress
//   - Error Context
//
// These keys follow a hierarchical naming convention (e.g., "model.name",
// "data.cells") to enable structured log analysis and filtering.

package log

// Model and Operation Context
// These attributes identify the model, the component and the operation being performed.
const (
	// ModelNameKey identifies the model or estimator.
	// Examples: "SGDClassifier", "StandardScaler", "Immune_All_Low"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "transform", "annotate", "over_cluster"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	// Examples: "annotate", "train", "dataio", "neighbors"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	// Examples: "training", "inference", "preprocessing"
	PhaseKey = "ml.phase"

	// ModeKey records the training or voting mode.
	// Examples: "full_batch", "mini_batch", "majority_voting"
	ModeKey = "ml.mode"
)

// Data Shape and Characteristics
// These attributes describe the expression matrix being processed.
const (
	// CellsKey indicates the number of cells (rows) in the dataset.
	CellsKey = "data.cells"

	// GenesKey indicates the number of genes (columns) in the dataset.
	GenesKey = "data.genes"

	// OverlapKey indicates the number of genes shared between model and input.
	OverlapKey = "data.overlap"

	// ClassesKey indicates the number of cell types known to a model.
	ClassesKey = "data.classes"

	// ClustersKey indicates the number of clusters in an over-clustering.
	ClustersKey = "data.clusters"

	// FormatKey records the detected input format.
	// Examples: "csv", "tsv", "mtx", "mtx.gz"
	FormatKey = "data.format"

	// PathKey records an input or output file path.
	PathKey = "data.path"

	// BatchSizeKey indicates the size of processing batches.
	BatchSizeKey = "data.batch_size"
)

// Training Progress and Hyperparameters
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// LossKey records the loss value during training.
	LossKey = "metrics.loss"

	// AccuracyKey records the agreement between two labelings.
	AccuracyKey = "metrics.accuracy"

	ModularityKey = "metrics.modularity"

	// EpochKey records the current epoch number during training.
	EpochKey = "training.epoch"

	// IterationKey records the number of SGD steps performed.
	IterationKey = "training.iteration"

	// AlphaKey records the L2 regularization strength.
	AlphaKey = "hyperparams.alpha"

	// ResolutionKey records the modularity resolution used for over-clustering.
	ResolutionKey = "hyperparams.resolution"

	// NeighborsKey records the number of neighbors of the kNN graph.
	NeighborsKey = "hyperparams.n_neighbors"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// JobsKey records the number of parallel workers.
	JobsKey = "config.n_jobs"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Populated automatically when an error is logged.
	StacktraceKey = "error.stacktrace"

	// SuggestionKey provides a hint for resolving the issue.
	SuggestionKey = "error.suggestion"
)

// Standard attribute value constants for common operations.
const (
	OperationFit         = "fit"
	OperationPartialFit  = "partial_fit"
	OperationPredict     = "predict"
	OperationTransform   = "transform"
	OperationAnnotate    = "annotate"
	OperationOverCluster = "over_cluster"
	OperationVote        = "majority_vote"
	OperationLoad        = "load"
	OperationExport      = "export"

	PhaseTraining      = "training"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
