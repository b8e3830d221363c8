// Package config provides unified configuration loading for evonet.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/evonet/internal/constants"
	"github.com/nvandessel/evonet/internal/logging"
	"github.com/nvandessel/evonet/internal/network"
	"github.com/nvandessel/evonet/internal/squash"
	"gopkg.in/yaml.v3"
)

// ErrUnknownKey is returned by Get and Set for keys outside the schema.
var ErrUnknownKey = errors.New("unknown configuration key")

// EvonetConfig contains all evonet configuration settings.
type EvonetConfig struct {
	// Training controls gradient training runs.
	Training TrainingConfig `json:"training" yaml:"training"`

	// Mutation bounds the random topology and parameter edits.
	Mutation MutationConfig `json:"mutation" yaml:"mutation"`

	// Evolution controls population-based search.
	Evolution EvolutionConfig `json:"evolution" yaml:"evolution"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store locates the network database.
	Store StoreConfig `json:"store" yaml:"store"`
}

// TrainingConfig configures backpropagation training.
type TrainingConfig struct {
	Rate     float64 `json:"rate" yaml:"rate"`
	Momentum float64 `json:"momentum" yaml:"momentum"`

	// Update is "online" (apply after every sample) or "batch".
	Update    string `json:"update" yaml:"update"`
	BatchSize int    `json:"batch_size" yaml:"batch_size"`

	Epochs         int     `json:"epochs" yaml:"epochs"`
	ErrorThreshold float64 `json:"error_threshold" yaml:"error_threshold"`
	LogEvery       int     `json:"log_every" yaml:"log_every"`
	Shuffle        bool    `json:"shuffle" yaml:"shuffle"`
}

// MutationConfig configures the mutation engine.
type MutationConfig struct {
	// Seed fixes the random source. 0 means time-based.
	Seed int64 `json:"seed" yaml:"seed"`

	BiasRange   float64 `json:"bias_range" yaml:"bias_range"`
	WeightRange float64 `json:"weight_range" yaml:"weight_range"`

	// Squashes lists activation names mutations may pick. Empty means all.
	Squashes []string `json:"squashes,omitempty" yaml:"squashes,omitempty"`

	FeedForwardOnly bool `json:"feed_forward_only" yaml:"feed_forward_only"`
	MutateOutput    bool `json:"mutate_output" yaml:"mutate_output"`
}

// Options converts the section into network mutation options.
func (m MutationConfig) Options() (network.MutationOptions, error) {
	opts := network.MutationOptions{
		BiasRange:       m.BiasRange,
		WeightRange:     m.WeightRange,
		FeedForwardOnly: m.FeedForwardOnly,
		MutateOutput:    m.MutateOutput,
	}
	for _, name := range m.Squashes {
		k, err := squash.Parse(name)
		if err != nil {
			return network.MutationOptions{}, err
		}
		opts.Squashes = append(opts.Squashes, k)
	}
	return opts, nil
}

// EvolutionConfig configures neuro-evolution runs.
type EvolutionConfig struct {
	Population        int     `json:"population" yaml:"population"`
	Elitism           int     `json:"elitism" yaml:"elitism"`
	Generations       int     `json:"generations" yaml:"generations"`
	MutationsPerChild int     `json:"mutations_per_child" yaml:"mutations_per_child"`
	Workers           int     `json:"workers" yaml:"workers"`
	TargetError       float64 `json:"target_error" yaml:"target_error"`

	// CheckpointEvery writes a checkpoint archive every N generations. 0 disables.
	CheckpointEvery int `json:"checkpoint_every" yaml:"checkpoint_every"`
	CheckpointKeep  int `json:"checkpoint_keep" yaml:"checkpoint_keep"`
}

// LoggingConfig configures evonet's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables mutation logging to .evonet/mutations.jsonl.
	// "trace" additionally logs every epoch and generation.
	Level string `json:"level" yaml:"level"`

	// Format is "text" (default) or "json".
	Format string `json:"format" yaml:"format"`
}

// StoreConfig locates persistent state.
type StoreConfig struct {
	// Path is the SQLite database file. Relative paths resolve against the
	// project root; empty means <root>/.evonet/evonet.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ResolvePath returns the database path for a project root.
func (s StoreConfig) ResolvePath(root string) string {
	switch {
	case s.Path == "":
		return filepath.Join(root, constants.DirName, constants.StoreFile)
	case filepath.IsAbs(s.Path):
		return s.Path
	default:
		return filepath.Join(root, s.Path)
	}
}

// Default returns an EvonetConfig with sensible defaults.
func Default() *EvonetConfig {
	return &EvonetConfig{
		Training: TrainingConfig{
			Rate:           constants.DefaultRate,
			Momentum:       constants.DefaultMomentum,
			Update:         constants.UpdateOnline,
			BatchSize:      constants.DefaultBatchSize,
			Epochs:         constants.DefaultEpochs,
			ErrorThreshold: constants.DefaultErrorThreshold,
			LogEvery:       constants.DefaultLogEvery,
			Shuffle:        true,
		},
		Mutation: MutationConfig{
			BiasRange:    constants.DefaultBiasRange,
			WeightRange:  constants.DefaultWeightRange,
			MutateOutput: true,
		},
		Evolution: EvolutionConfig{
			Population:        constants.DefaultPopulation,
			Elitism:           constants.DefaultElitism,
			Generations:       constants.DefaultGenerations,
			MutationsPerChild: constants.DefaultMutationsPerChild,
			Workers:           constants.DefaultWorkers,
			TargetError:       constants.DefaultErrorThreshold,
			CheckpointKeep:    constants.DefaultCheckpointKeep,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// UserPath returns ~/.evonet/config.yaml.
func UserPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, constants.DirName, constants.ConfigFile), nil
}

// ProjectPath returns <root>/.evonet/config.yaml.
func ProjectPath(root string) string {
	return filepath.Join(root, constants.DirName, constants.ConfigFile)
}

// ScopePath returns the file backing the given layer.
func ScopePath(scope constants.Scope, root string) (string, error) {
	switch scope {
	case constants.ScopeProject:
		return ProjectPath(root), nil
	case constants.ScopeUser:
		return UserPath()
	default:
		return "", fmt.Errorf("unknown config scope %q (use %q or %q)", scope, constants.ScopeProject, constants.ScopeUser)
	}
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.evonet/config.yaml -> <root>/.evonet/config.yaml -> environment.
// An empty root skips the project file.
func Load(root string) (*EvonetConfig, error) {
	config := Default()

	var paths []string
	if p, err := UserPath(); err == nil {
		paths = append(paths, p)
	}
	if root != "" {
		paths = append(paths, ProjectPath(root))
	}
	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr != nil {
			continue
		}
		if err := mergeFile(config, p); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file over the defaults.
func LoadFromFile(path string) (*EvonetConfig, error) {
	config := Default()
	if err := mergeFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile overlays the keys present in a YAML file onto config.
func mergeFile(config *EvonetConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	config.Store.Path = expandEnvVars(config.Store.Path)
	return nil
}

// Save writes the configuration as YAML, creating parent directories.
func (c *EvonetConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *EvonetConfig) Validate() error {
	t := c.Training
	if t.Rate <= 0 {
		return fmt.Errorf("training.rate must be positive, got %v", t.Rate)
	}
	if t.Momentum < 0 {
		return fmt.Errorf("training.momentum must be non-negative, got %v", t.Momentum)
	}
	if t.Update != constants.UpdateOnline && t.Update != constants.UpdateBatch {
		return fmt.Errorf("invalid training.update: %s (valid: %s, %s)", t.Update, constants.UpdateOnline, constants.UpdateBatch)
	}
	if t.BatchSize < 1 {
		return fmt.Errorf("training.batch_size must be at least 1, got %d", t.BatchSize)
	}
	if t.Epochs < 1 {
		return fmt.Errorf("training.epochs must be at least 1, got %d", t.Epochs)
	}
	if t.ErrorThreshold < 0 {
		return fmt.Errorf("training.error_threshold must be non-negative, got %v", t.ErrorThreshold)
	}

	if c.Mutation.BiasRange < 0 || c.Mutation.WeightRange < 0 {
		return fmt.Errorf("mutation ranges must be non-negative")
	}
	if _, err := c.Mutation.Options(); err != nil {
		return fmt.Errorf("mutation.squashes: %w", err)
	}

	e := c.Evolution
	if e.Population < 1 {
		return fmt.Errorf("evolution.population must be at least 1, got %d", e.Population)
	}
	if e.Elitism < 0 || e.Elitism >= e.Population {
		return fmt.Errorf("evolution.elitism must be in [0, population), got %d", e.Elitism)
	}
	if e.Generations < 1 {
		return fmt.Errorf("evolution.generations must be at least 1, got %d", e.Generations)
	}
	if e.MutationsPerChild < 0 || e.Workers < 0 || e.CheckpointEvery < 0 || e.CheckpointKeep < 0 {
		return fmt.Errorf("evolution counts must be non-negative")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %s, or empty for default)",
			c.Logging.Level, strings.Join(logging.Levels(), ", "))
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}

// field binds a dot-notation key to a config value.
type field struct {
	get func(c *EvonetConfig) any
	set func(c *EvonetConfig, v string) error
}

func floatField(p func(c *EvonetConfig) *float64) field {
	return field{
		get: func(c *EvonetConfig) any { return *p(c) },
		set: func(c *EvonetConfig, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid number: %s", v)
			}
			*p(c) = f
			return nil
		},
	}
}

func intField(p func(c *EvonetConfig) *int) field {
	return field{
		get: func(c *EvonetConfig) any { return *p(c) },
		set: func(c *EvonetConfig, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer: %s", v)
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *EvonetConfig) *bool) field {
	return field{
		get: func(c *EvonetConfig) any { return *p(c) },
		set: func(c *EvonetConfig, v string) error {
			*p(c) = v == "true" || v == "1"
			return nil
		},
	}
}

func stringField(p func(c *EvonetConfig) *string) field {
	return field{
		get: func(c *EvonetConfig) any { return *p(c) },
		set: func(c *EvonetConfig, v string) error {
			*p(c) = v
			return nil
		},
	}
}

var fields = map[string]field{
	"training.rate":            floatField(func(c *EvonetConfig) *float64 { return &c.Training.Rate }),
	"training.momentum":        floatField(func(c *EvonetConfig) *float64 { return &c.Training.Momentum }),
	"training.update":          stringField(func(c *EvonetConfig) *string { return &c.Training.Update }),
	"training.batch_size":      intField(func(c *EvonetConfig) *int { return &c.Training.BatchSize }),
	"training.epochs":          intField(func(c *EvonetConfig) *int { return &c.Training.Epochs }),
	"training.error_threshold": floatField(func(c *EvonetConfig) *float64 { return &c.Training.ErrorThreshold }),
	"training.log_every":       intField(func(c *EvonetConfig) *int { return &c.Training.LogEvery }),
	"training.shuffle":         boolField(func(c *EvonetConfig) *bool { return &c.Training.Shuffle }),

	"mutation.seed": {
		get: func(c *EvonetConfig) any { return c.Mutation.Seed },
		set: func(c *EvonetConfig, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid seed: %s", v)
			}
			c.Mutation.Seed = n
			return nil
		},
	},
	"mutation.bias_range":        floatField(func(c *EvonetConfig) *float64 { return &c.Mutation.BiasRange }),
	"mutation.weight_range":      floatField(func(c *EvonetConfig) *float64 { return &c.Mutation.WeightRange }),
	"mutation.feed_forward_only": boolField(func(c *EvonetConfig) *bool { return &c.Mutation.FeedForwardOnly }),
	"mutation.mutate_output":     boolField(func(c *EvonetConfig) *bool { return &c.Mutation.MutateOutput }),
	"mutation.squashes": {
		get: func(c *EvonetConfig) any { return strings.Join(c.Mutation.Squashes, ",") },
		set: func(c *EvonetConfig, v string) error {
			c.Mutation.Squashes = splitList(v)
			return nil
		},
	},

	"evolution.population":          intField(func(c *EvonetConfig) *int { return &c.Evolution.Population }),
	"evolution.elitism":             intField(func(c *EvonetConfig) *int { return &c.Evolution.Elitism }),
	"evolution.generations":         intField(func(c *EvonetConfig) *int { return &c.Evolution.Generations }),
	"evolution.mutations_per_child": intField(func(c *EvonetConfig) *int { return &c.Evolution.MutationsPerChild }),
	"evolution.workers":             intField(func(c *EvonetConfig) *int { return &c.Evolution.Workers }),
	"evolution.target_error":        floatField(func(c *EvonetConfig) *float64 { return &c.Evolution.TargetError }),
	"evolution.checkpoint_every":    intField(func(c *EvonetConfig) *int { return &c.Evolution.CheckpointEvery }),
	"evolution.checkpoint_keep":     intField(func(c *EvonetConfig) *int { return &c.Evolution.CheckpointKeep }),

	"logging.level":  stringField(func(c *EvonetConfig) *string { return &c.Logging.Level }),
	"logging.format": stringField(func(c *EvonetConfig) *string { return &c.Logging.Format }),
	"store.path":     stringField(func(c *EvonetConfig) *string { return &c.Store.Path }),
}

// Keys returns every dot-notation key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value stored under a dot-notation key such as "training.rate".
func (c *EvonetConfig) Get(key string) (any, error) {
	f, ok := fields[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	return f.get(c), nil
}

// Set parses value into the dot-notation key and validates the result. On
// failure the config is left unchanged.
func (c *EvonetConfig) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	next := c.clone()
	if err := f.set(next, value); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = *next
	return nil
}

func (c *EvonetConfig) clone() *EvonetConfig {
	next := *c
	next.Mutation.Squashes = append([]string(nil), c.Mutation.Squashes...)
	return &next
}

// envPrefix maps a key like "training.rate" to EVONET_TRAINING_RATE.
const envPrefix = "EVONET_"

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnvOverrides applies EVONET_* environment variables. Values that do
// not parse are ignored.
func applyEnvOverrides(config *EvonetConfig) {
	for _, key := range Keys() {
		if v := os.Getenv(EnvName(key)); v != "" {
			_ = fields[key].set(config, v)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
