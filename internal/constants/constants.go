// Package constants provides named defaults used throughout evonet.
// It centralizes hyperparameters so the config, CLI and library defaults agree.
package constants

// Training defaults.
const (
	// DefaultRate is the learning rate applied to weight and bias gradients.
	DefaultRate = 0.3

	// DefaultMomentum scales the previous delta added to each update.
	DefaultMomentum = 0.0

	// DefaultEpochs is the maximum number of passes over a training set.
	DefaultEpochs = 1000

	// DefaultErrorThreshold stops training once the epoch mean squared
	// error falls below it.
	DefaultErrorThreshold = 0.005

	// DefaultBatchSize is the number of samples between updates in batch mode.
	DefaultBatchSize = 1

	// DefaultLogEvery is the epoch interval between progress log lines.
	DefaultLogEvery = 100
)

// Update modes accepted by the training configuration.
const (
	UpdateOnline = "online"
	UpdateBatch  = "batch"
)

// Mutation defaults.
const (
	// DefaultBiasRange bounds the uniform perturbation added by the bias mutation.
	DefaultBiasRange = 1.0

	// DefaultWeightRange bounds the uniform perturbation added by the weight mutation.
	DefaultWeightRange = 1.0
)

// Evolution defaults.
const (
	DefaultPopulation        = 50
	DefaultElitism           = 5
	DefaultGenerations       = 100
	DefaultMutationsPerChild = 1
	DefaultWorkers           = 4

	// DefaultTournamentSize is the number of genomes drawn per parent selection.
	DefaultTournamentSize = 3

	// DefaultCheckpointKeep is how many checkpoint archives retention keeps.
	DefaultCheckpointKeep = 5
)

// Builder weight and bias initialisation.
const (
	// HiddenBiasRange bounds the uniform initial bias of builder hidden nodes.
	HiddenBiasRange = 0.1

	// GateBias is the initial bias of LSTM gates, keeping them open at start.
	GateBias = 1.0
)

// Archive limits.
const (
	// MaxArchiveSize caps the decompressed payload of an archive (256 MiB).
	MaxArchiveSize = 256 << 20

	// ArchiveFormatVersion is the current archive header version.
	ArchiveFormatVersion = 2
)

// Visualization server limits.
const (
	// ActivateRate is the sustained /api/activate requests per second per client.
	ActivateRate = 20.0

	// ActivateBurst is the number of activation requests a client may burst.
	ActivateBurst = 40
)

// Project layout.
const (
	// DirName is the per-project and per-user data directory name.
	DirName = ".evonet"

	// ConfigFile is the YAML configuration file name inside DirName.
	ConfigFile = "config.yaml"

	// StoreFile is the SQLite database file name inside DirName.
	StoreFile = "evonet.db"

	// CheckpointDir is the checkpoint directory name inside DirName.
	CheckpointDir = "checkpoints"

	// ArchiveDir is the default export directory name inside DirName.
	ArchiveDir = "archives"
)
