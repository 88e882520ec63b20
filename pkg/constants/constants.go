package constants

import "time"

// Application constants
const (
	AppName        = "tsforecast"
	AppDescription = "Training and evaluation harness for exponential-smoothing forecasters"
	AppVersion     = "0.1.0"

	// EnvPrefix is the prefix viper uses for environment overrides
	EnvPrefix = "TSFORECAST"
)

// Artifact layout
const (
	DefaultCheckpointDir = "./checkpoints"
	DefaultResultsDir    = "./results"

	CheckpointFile     = "checkpoint.pth"
	ArgsFile           = "args.yaml"
	LossCurveFile      = "loss.png"
	MetricsFileSuffix  = "_metrics.npy"
	PredictionsFile    = "pred.npy"
	GroundTruthFile    = "true.npy"
	CheckpointArtifact = "checkpoints"
	ResultsArtifact    = "results"
)

// Data splits
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Feature modes
const (
	FeaturesMultivariate  = "M"  // multivariate in, multivariate out
	FeaturesUnivariate    = "S"  // univariate in, univariate out
	FeaturesMultiToSingle = "MS" // multivariate in, last channel scored
)

// Training defaults, matching the original experiment scripts
const (
	DefaultModel         = "ETSformer"
	DefaultSeqLen        = 96
	DefaultLabelLen      = 0
	DefaultPredLen       = 24
	DefaultTrainEpochs   = 1
	DefaultBatchSize     = 32
	DefaultPatience      = 3
	DefaultLearningRate  = 1e-3
	DefaultMinLR         = 1e-30
	DefaultWarmupEpochs  = 3
	DefaultLRAdjust      = "exponential_with_warmup"
	DefaultIterations    = 1
	DefaultGradClipNorm  = 1.0
	DefaultLogEvery      = 100
	DefaultSmoothingLRx  = 100.0
	DefaultFreq          = "h"
	DefaultDescription   = "test"
	DefaultSyntheticRows = 2000
)

// Storage defaults
const (
	DefaultStorageTimeout = 30 * time.Second
	DefaultStreamMaxLen   = 10000
	DefaultLedgerTable    = "experiment_results"
	DefaultMeasurement    = "training_epoch"
)

// Telemetry defaults
const (
	DefaultMetricsPath      = "/metrics"
	DefaultHealthPath       = "/health"
	DefaultMetricsNamespace = "tsforecast"
	DefaultShutdownTimeout  = 10 * time.Second
)
