// Package config provides configuration management for recall.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration.
type Config struct {
	// Store is the persistence configuration.
	Store StoreConfig `mapstructure:"store"`

	// Ranking holds the composite score weights and reinforcement knobs.
	Ranking RankingConfig `mapstructure:"ranking"`

	// Decay holds the importance decay parameters.
	Decay DecayConfig `mapstructure:"decay"`

	// Echo holds the echo/novelty filter thresholds.
	Echo EchoConfig `mapstructure:"echo"`

	// Dispatch points at the rule table.
	Dispatch DispatchConfig `mapstructure:"dispatch"`

	// Embedding selects the embedding provider.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log"`

	// Server is the HTTP surface configuration.
	Server ServerConfig `mapstructure:"server"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StoreConfig holds the memory store settings.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `mapstructure:"path" validate:"required"`

	// Dimension is the embedding dimension every unit must match.
	Dimension int `mapstructure:"dimension" validate:"required,min=1"`
}

// RankingConfig holds retrieval scoring settings.
// The three weights must sum to 1.
type RankingConfig struct {
	WeightSimilarity    float64 `mapstructure:"weight_similarity" validate:"gte=0,lte=1"`
	WeightImportance    float64 `mapstructure:"weight_importance" validate:"gte=0,lte=1"`
	WeightEmotion       float64 `mapstructure:"weight_emotion" validate:"gte=0,lte=1"`
	InitialImportance   float64 `mapstructure:"initial_importance" validate:"gte=0,lte=1"`
	ImportanceIncrement float64 `mapstructure:"importance_increment" validate:"gte=0,lte=1"`
	EmotionAmplify      float64 `mapstructure:"emotion_amplify" validate:"gte=0,lte=1"`
	DefaultK            int     `mapstructure:"default_k" validate:"min=1"`
}

// DecayConfig holds importance decay settings.
type DecayConfig struct {
	// RatePerHour is subtracted from importance per hour without access.
	RatePerHour float64 `mapstructure:"rate_per_hour" validate:"gte=0"`

	// Floor is the minimum importance a unit decays to.
	Floor float64 `mapstructure:"floor" validate:"gte=0,lte=1"`

	// Interval is how often the background sweep runs.
	Interval time.Duration `mapstructure:"interval"`
}

// EchoConfig holds echo filter thresholds.
type EchoConfig struct {
	PartialThreshold  float64 `mapstructure:"partial_threshold" validate:"gte=0,lte=1"`
	VerbatimThreshold float64 `mapstructure:"verbatim_threshold" validate:"gte=0,lte=1"`
	MaxExcerptChars   int     `mapstructure:"max_excerpt_chars" validate:"min=16"`
}

// DispatchConfig holds the rule table location.
type DispatchConfig struct {
	// RulesFile is a YAML rule table. Empty means the built-in table.
	RulesFile string `mapstructure:"rules_file"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=hash ollama openai"`
	Model    string `mapstructure:"model"`
	URL      string `mapstructure:"url"`
	APIKey   string `mapstructure:"api_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig holds HTTP settings for `recall serve`.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// DefaultConfig returns the configuration used when nothing else is set.
// The ranking and echo constants are empirically tuned defaults, not derived values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:      defaultDBPath(),
			Dimension: 384,
		},
		Ranking: RankingConfig{
			WeightSimilarity:    0.6,
			WeightImportance:    0.25,
			WeightEmotion:       0.15,
			InitialImportance:   0.5,
			ImportanceIncrement: 0.1,
			EmotionAmplify:      0.05,
			DefaultK:            5,
		},
		Decay: DecayConfig{
			RatePerHour: 0.005,
			Floor:       0.05,
			Interval:    time.Hour,
		},
		Echo: EchoConfig{
			PartialThreshold:  0.5,
			VerbatimThreshold: 0.7,
			MaxExcerptChars:   280,
		},
		Embedding: EmbeddingConfig{
			Provider: "hash",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:7420",
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "recall.db"
	}
	return filepath.Join(home, ".recall", "recall.db")
}
