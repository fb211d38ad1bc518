package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "RECALL_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader handles configuration loading from various sources.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New(Delimiter),
	}
}

// Load loads configuration with the following priority:
// 1. overrides (highest, usually CLI flags)
// 2. environment variables
// 3. configuration file
// 4. defaults (lowest)
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaultsMap(DefaultConfig()), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("%w: load config file: %v", ErrConfiguration, err)
		}
	} else if err := l.loadDefaultFiles(); err != nil {
		return nil, err
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrConfiguration, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadFile loads configuration from a YAML or JSON file.
func (l *Loader) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser

	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// loadDefaultFiles loads the first config found in the standard locations.
// A file that exists but does not parse is an error, not a skip.
func (l *Loader) loadDefaultFiles() error {
	candidates := []string{
		"recall.yaml",
		"recall.yml",
		"recall.json",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".recall", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if err := l.loadFile(path); err != nil {
				return fmt.Errorf("%w: load config file %s: %v", ErrConfiguration, path, err)
			}
			return nil
		}
	}
	return nil
}

// loadEnv maps RECALL_RANKING__DEFAULT_K to ranking.default_k.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", Delimiter)
	}), nil)
}

func defaultsMap(c *Config) map[string]interface{} {
	return map[string]interface{}{
		"store.path":                   c.Store.Path,
		"store.dimension":              c.Store.Dimension,
		"ranking.weight_similarity":    c.Ranking.WeightSimilarity,
		"ranking.weight_importance":    c.Ranking.WeightImportance,
		"ranking.weight_emotion":       c.Ranking.WeightEmotion,
		"ranking.initial_importance":   c.Ranking.InitialImportance,
		"ranking.importance_increment": c.Ranking.ImportanceIncrement,
		"ranking.emotion_amplify":      c.Ranking.EmotionAmplify,
		"ranking.default_k":            c.Ranking.DefaultK,
		"decay.rate_per_hour":          c.Decay.RatePerHour,
		"decay.floor":                  c.Decay.Floor,
		"decay.interval":               c.Decay.Interval.String(),
		"echo.partial_threshold":       c.Echo.PartialThreshold,
		"echo.verbatim_threshold":      c.Echo.VerbatimThreshold,
		"echo.max_excerpt_chars":       c.Echo.MaxExcerptChars,
		"dispatch.rules_file":          c.Dispatch.RulesFile,
		"embedding.provider":           c.Embedding.Provider,
		"embedding.model":              c.Embedding.Model,
		"embedding.url":                c.Embedding.URL,
		"embedding.api_key":            c.Embedding.APIKey,
		"log.level":                    c.Log.Level,
		"log.format":                   c.Log.Format,
		"server.addr":                  c.Server.Addr,
		"server.shutdown_timeout":      c.Server.ShutdownTimeout.String(),
		"metrics.enabled":              c.Metrics.Enabled,
		"metrics.path":                 c.Metrics.Path,
	}
}
