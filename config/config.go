// Package config loads service configuration from YAML with sane defaults.
// Every field has a working default so a bare binary runs against ./data
// with an in-tree state file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Listen    string          `yaml:"listen"`
	DataDir   string          `yaml:"data_dir"`
	StatePath string          `yaml:"state_path"`
	Log       LogConfig       `yaml:"log"`
	Explainer ExplainerConfig `yaml:"explainer"`
	Holds     HoldsConfig     `yaml:"holds"`
	Recommend RecommendConfig `yaml:"recommend"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// ExplainerConfig selects the optional reply rewriter. An empty provider
// disables it; "openai" and "anthropic" are supported.
type ExplainerConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// HoldsConfig tunes hold lifecycle parameters.
type HoldsConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// RecommendConfig tunes the recommender.
type RecommendConfig struct {
	FeedbackWeight float64 `yaml:"feedback_weight"`
	TopK           int     `yaml:"top_k"`
}

// Default search locations, tried in order when no explicit path is given.
var searchPaths = []string{
	"shelfwise.yaml",
	"config/shelfwise.yaml",
	"/etc/shelfwise/shelfwise.yaml",
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:    ":8080",
		DataDir:   "data",
		StatePath: "data/agent_state.json",
		Log:       LogConfig{Level: "info", Format: "json"},
		Explainer: ExplainerConfig{TimeoutSeconds: 8},
		Holds:     HoldsConfig{RetentionDays: 7},
		Recommend: RecommendConfig{FeedbackWeight: 1.0, TopK: 5},
	}
}

// Load reads configuration from the given path, or from the first search
// path that exists when path is empty. A missing file yields the defaults;
// an unreadable or malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		for _, p := range searchPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.Holds.RetentionDays <= 0 {
		return fmt.Errorf("holds.retention_days must be positive, got %d", c.Holds.RetentionDays)
	}
	if c.Recommend.TopK <= 0 {
		return fmt.Errorf("recommend.top_k must be positive, got %d", c.Recommend.TopK)
	}
	switch c.Explainer.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("explainer.provider %q is not supported", c.Explainer.Provider)
	}
	return nil
}

// HoldRetention returns the configured retention window as a duration.
func (c Config) HoldRetention() time.Duration {
	return time.Duration(c.Holds.RetentionDays) * 24 * time.Hour
}

// ExplainerTimeout returns the configured explainer timeout.
func (c Config) ExplainerTimeout() time.Duration {
	return time.Duration(c.Explainer.TimeoutSeconds) * time.Second
}
