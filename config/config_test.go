package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scigoErrors "github.com/YuminosukeSato/robotdetect/pkg/errors"
	"github.com/YuminosukeSato/robotdetect/preprocessing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ROBOT", cfg.Data.Target)
	assert.Equal(t, 50, cfg.Search.Trials)
	assert.Equal(t, uint64(42), cfg.Search.Seed)
	assert.Equal(t, 50, cfg.Training.EarlyStoppingRounds)
	assert.Equal(t, "best_model.json", cfg.Output.Model)
	assert.Equal(t, ',', cfg.Delimiter())

	opts, err := cfg.PrepareOptions()
	require.NoError(t, err)
	assert.Equal(t, preprocessing.DefaultPrepareOptions(), opts)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Setenv("ROBOTDETECT_TEST_DATA", "/srv/data/sessions.tsv")
	cfg, err := Parse([]byte(`
data:
  path: ${ROBOTDETECT_TEST_DATA}
  delimiter: "\t"
prepare:
  imputation: train_only
search:
  trials: 5
  storage: file:study.db
`))
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/sessions.tsv", cfg.Data.Path)
	assert.Equal(t, '\t', cfg.Delimiter())
	assert.Equal(t, 5, cfg.Search.Trials)
	assert.Equal(t, "file:study.db", cfg.Search.Storage)
	assert.Equal(t, "ROBOT", cfg.Data.Target, "unset keys keep defaults")
	assert.Equal(t, 0.2, cfg.Split.TestFraction)

	opts, err := cfg.PrepareOptions()
	require.NoError(t, err)
	assert.Equal(t, preprocessing.ImputeTrainOnly, opts.Imputation)
}

func TestTraceSettings(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, 1.0, cfg.Trace.SamplingRate)
	assert.Equal(t, filepath.Join("results", "traces.json"), cfg.TracePath())

	cfg, err := Parse([]byte("trace:\n  enabled: false\n  file: ''\n"))
	require.NoError(t, err, "an empty file is fine while tracing is off")
	assert.False(t, cfg.Trace.Enabled)

	cfg, err = Parse([]byte("trace:\n  sampling_rate: 0.25\n  file: /var/log/robotdetect/spans.json\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Trace.SamplingRate)
	assert.Equal(t, "/var/log/robotdetect/spans.json", cfg.TracePath())
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		param string
	}{
		{"unknown key", "search:\n  trails: 5\n", ""},
		{"two documents", "search:\n  trials: 5\n---\nsearch:\n  trials: 6\n", ""},
		{"zero trials", "search:\n  trials: 0\n", "search.trials"},
		{"test fraction", "split:\n  test_fraction: 1.5\n", "split.test_fraction"},
		{"delimiter", "data:\n  delimiter: ';;'\n", "data.delimiter"},
		{"imputation", "prepare:\n  imputation: after\n", "imputation"},
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"max bin", "training:\n  max_bin: 1\n", "training.max_bin"},
		{"sampling rate", "trace:\n  sampling_rate: 1.5\n", "trace.sampling_rate"},
		{"trace file", "trace:\n  file: ''\n", "trace.file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			if tt.param == "" {
				return
			}
			var valErr *scigoErrors.ValidationError
			require.True(t, scigoErrors.As(err, &valErr), "got %v", err)
			assert.Equal(t, tt.param, valErr.ParamName)
		})
	}
}

func TestLoadAndFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robotdetect.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  dir: out\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Output.Dir)

	t.Setenv(EnvConfigPath, path)
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "out", cfg.Output.Dir)

	t.Setenv(EnvConfigPath, "")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
