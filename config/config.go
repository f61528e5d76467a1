// Package config loads the run configuration from YAML.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/pkg/log"
	"github.com/YuminosukeSato/robotdetect/preprocessing"
)

// EnvConfigPath names the environment variable holding an optional config path.
const EnvConfigPath = "ROBOTDETECT_CONFIG"

// Config is the complete run configuration.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Split    SplitConfig    `yaml:"split"`
	Prepare  PrepareConfig  `yaml:"prepare"`
	Search   SearchConfig   `yaml:"search"`
	Training TrainingConfig `yaml:"training"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
	Trace    TraceConfig    `yaml:"trace"`
}

// DataConfig locates the input table.
type DataConfig struct {
	Path      string `yaml:"path"`
	Target    string `yaml:"target"`
	Delimiter string `yaml:"delimiter"`
}

// SplitConfig controls the train/test split.
type SplitConfig struct {
	TestFraction float64 `yaml:"test_fraction"`
	Seed         uint64  `yaml:"seed"`
}

// PrepareConfig controls data preparation.
type PrepareConfig struct {
	MissingThreshold float64  `yaml:"missing_threshold"`
	Imputation       string   `yaml:"imputation"`
	Denylist         []string `yaml:"denylist"`
}

// SearchConfig controls the hyperparameter search.
type SearchConfig struct {
	Trials        int    `yaml:"trials"`
	Seed          uint64 `yaml:"seed"`
	StartupTrials int    `yaml:"startup_trials"`
	EICandidates  int    `yaml:"ei_candidates"`
	// Storage is a SQLite DSN; empty keeps the study in memory.
	Storage string `yaml:"storage"`
}

// TrainingConfig holds booster settings that are not searched.
type TrainingConfig struct {
	EarlyStoppingRounds int    `yaml:"early_stopping_rounds"`
	Seed                uint64 `yaml:"seed"`
	MaxBin              int    `yaml:"max_bin"`
	NumThreads          int    `yaml:"num_threads"`
}

// OutputConfig names the artifacts directory and model file.
type OutputConfig struct {
	Dir   string `yaml:"dir"`
	Model string `yaml:"model"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TraceConfig controls span export. Spans are written as JSON to File,
// resolved against Output.Dir when relative.
type TraceConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate"`
	File         string  `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Path:      "../data/data.csv",
			Target:    "ROBOT",
			Delimiter: ",",
		},
		Split: SplitConfig{TestFraction: 0.2, Seed: 42},
		Prepare: PrepareConfig{
			MissingThreshold: 0.25,
			Imputation:       preprocessing.ImputeBeforeSplit.String(),
			Denylist:         append([]string(nil), preprocessing.DefaultDenylist...),
		},
		Search: SearchConfig{
			Trials:        50,
			Seed:          42,
			StartupTrials: 10,
			EICandidates:  24,
		},
		Training: TrainingConfig{
			EarlyStoppingRounds: 50,
			Seed:                42,
			MaxBin:              256,
		},
		Output: OutputConfig{Dir: "results", Model: "best_model.json"},
		Log:    LogConfig{Level: "info", Format: "json"},
		Trace:  TraceConfig{Enabled: true, SamplingRate: 1.0, File: "traces.json"},
	}
}

// Load reads path over the defaults. ${VAR} references are expanded before
// decoding and unknown keys are rejected.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, scigoErrors.NewValidationError("path", "config path is required", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "failed to read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes a single YAML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return nil, scigoErrors.Wrap(err, "failed to parse config")
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, scigoErrors.New("failed to parse config: expected single document")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv loads the file named by ROBOTDETECT_CONFIG, or the defaults when
// the variable is unset.
func FromEnv() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		log.GetLoggerWithName("config").Debug("No config file set, using defaults", "env", EnvConfigPath)
		return Default(), nil
	}
	return Load(path)
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	switch {
	case c.Data.Path == "":
		return scigoErrors.NewValidationError("data.path", "must not be empty", c.Data.Path)
	case c.Data.Target == "":
		return scigoErrors.NewValidationError("data.target", "must not be empty", c.Data.Target)
	case len([]rune(c.Data.Delimiter)) != 1:
		return scigoErrors.NewValidationError("data.delimiter", "must be a single character", c.Data.Delimiter)
	case c.Split.TestFraction <= 0 || c.Split.TestFraction >= 1:
		return scigoErrors.NewValidationError("split.test_fraction", "must be in (0, 1)", c.Split.TestFraction)
	case c.Prepare.MissingThreshold < 0 || c.Prepare.MissingThreshold > 1:
		return scigoErrors.NewValidationError("prepare.missing_threshold", "must be in [0, 1]", c.Prepare.MissingThreshold)
	case c.Search.Trials < 1:
		return scigoErrors.NewValidationError("search.trials", "must be >= 1", c.Search.Trials)
	case c.Search.StartupTrials < 0:
		return scigoErrors.NewValidationError("search.startup_trials", "must be >= 0", c.Search.StartupTrials)
	case c.Search.EICandidates < 1:
		return scigoErrors.NewValidationError("search.ei_candidates", "must be >= 1", c.Search.EICandidates)
	case c.Training.EarlyStoppingRounds < 0:
		return scigoErrors.NewValidationError("training.early_stopping_rounds", "must be >= 0", c.Training.EarlyStoppingRounds)
	case c.Training.MaxBin < 2 || c.Training.MaxBin > 65535:
		return scigoErrors.NewValidationError("training.max_bin", "must be in [2, 65535]", c.Training.MaxBin)
	case c.Output.Dir == "":
		return scigoErrors.NewValidationError("output.dir", "must not be empty", c.Output.Dir)
	case c.Output.Model == "":
		return scigoErrors.NewValidationError("output.model", "must not be empty", c.Output.Model)
	case c.Trace.SamplingRate <= 0 || c.Trace.SamplingRate > 1:
		return scigoErrors.NewValidationError("trace.sampling_rate", "must be in (0, 1]", c.Trace.SamplingRate)
	case c.Trace.Enabled && c.Trace.File == "":
		return scigoErrors.NewValidationError("trace.file", "must not be empty when tracing is enabled", c.Trace.File)
	}
	if _, err := preprocessing.ParseImputeStrategy(c.Prepare.Imputation); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console", "text":
	default:
		return scigoErrors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	return nil
}

// PrepareOptions converts the split and prepare sections.
func (c *Config) PrepareOptions() (preprocessing.PrepareOptions, error) {
	strategy, err := preprocessing.ParseImputeStrategy(c.Prepare.Imputation)
	if err != nil {
		return preprocessing.PrepareOptions{}, err
	}
	opts := preprocessing.DefaultPrepareOptions()
	opts.TestFraction = c.Split.TestFraction
	opts.Seed = c.Split.Seed
	opts.MissingThreshold = c.Prepare.MissingThreshold
	opts.Imputation = strategy
	if c.Prepare.Denylist != nil {
		opts.Denylist = append([]string(nil), c.Prepare.Denylist...)
	}
	return opts, nil
}

// Delimiter returns the input field separator.
func (c *Config) Delimiter() rune {
	return []rune(c.Data.Delimiter)[0]
}

// TracePath returns where spans are written.
func (c *Config) TracePath() string {
	if filepath.IsAbs(c.Trace.File) {
		return c.Trace.File
	}
	return filepath.Join(c.Output.Dir, c.Trace.File)
}
