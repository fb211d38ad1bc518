package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, Validate(DefaultConfig()))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 384, cfg.Store.Dimension)
	assert.Equal(t, 0.7, cfg.Echo.VerbatimThreshold)
	assert.Equal(t, 0.5, cfg.Echo.PartialThreshold)
	assert.Equal(t, time.Hour, cfg.Decay.Interval)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestLoad_FileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  dimension: 8
ranking:
  weight_similarity: 0.5
  weight_importance: 0.3
  weight_emotion: 0.2
decay:
  interval: 15m
`), 0o644))

	t.Setenv("RECALL_RANKING__DEFAULT_K", "9")

	cfg, err := NewLoader().Load(path, map[string]interface{}{
		"store.path": filepath.Join(dir, "x.db"),
	})
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Store.Dimension)
	assert.Equal(t, 0.5, cfg.Ranking.WeightSimilarity)
	assert.Equal(t, 15*time.Minute, cfg.Decay.Interval)
	assert.Equal(t, 9, cfg.Ranking.DefaultK)
	assert.Equal(t, filepath.Join(dir, "x.db"), cfg.Store.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
}

func TestLoad_DiscoveredFileMustParse(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)
	require.NoError(t, os.WriteFile("recall.yaml", []byte("store: [unclosed\n  dimension: :"), 0o644))

	_, err := NewLoader().Load("", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "recall.yaml")
}

func TestLoad_DiscoveredFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	chdir(t, dir)
	require.NoError(t, os.WriteFile("recall.yaml", []byte("store:\n  dimension: 16\n"), 0o644))

	cfg, err := NewLoader().Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Store.Dimension)
}

func TestLoad_MissingFileIsConfigError(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"weights do not sum to one", func(c *Config) { c.Ranking.WeightEmotion = 0.3 }, "Config.Ranking"},
		{"verbatim threshold above one", func(c *Config) { c.Echo.VerbatimThreshold = 1.2 }, "Config.Echo.VerbatimThreshold"},
		{"partial above verbatim", func(c *Config) { c.Echo.PartialThreshold = 0.8 }, "Config.Echo.PartialThreshold"},
		{"negative weight", func(c *Config) {
			c.Ranking.WeightSimilarity = 1.1
			c.Ranking.WeightImportance = -0.25
		}, "Config.Ranking.WeightImportance"},
		{"zero dimension", func(c *Config) { c.Store.Dimension = 0 }, "Config.Store.Dimension"},
		{"initial importance below floor", func(c *Config) { c.Ranking.InitialImportance = 0.01 }, "Config.Ranking.InitialImportance"},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "magic" }, "Config.Embedding.Provider"},
		{"zero interval", func(c *Config) { c.Decay.Interval = 0 }, "Config.Decay.Interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var details ValidationErrors
			require.True(t, errors.As(err, &details))
			fields := make([]string, 0, len(details))
			for _, d := range details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
