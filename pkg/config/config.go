// Package config holds the tunables for the conversation state manager.
// Values load from an optional YAML file and fall back to defaults that
// match the production deployment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every knob the manager components read at construction
// time. A zero Config is not usable; start from Default().
type Config struct {
	// StorageDir is the root directory for persisted documents. Each
	// entity kind gets its own subdirectory beneath it.
	StorageDir string `yaml:"storage_dir"`

	// MaxTurns bounds the per-conversation turn log. Oldest turns are
	// dropped first once the bound is exceeded.
	MaxTurns int `yaml:"max_turns"`

	// CacheTTL is the maximum age of a cached context string or cached
	// workflow document before it must be recomputed.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// ContextWindowLimit is the model context window, in tokens, that
	// the token budget tracker reports usage against.
	ContextWindowLimit int `yaml:"context_window_limit"`

	// SummaryThreshold is the fraction of MaxTurns at which progressive
	// summarization kicks in (0.0-1.0).
	SummaryThreshold float64 `yaml:"summary_threshold"`

	// PreserveRecent is how many recent turns stay verbatim after
	// summarization.
	PreserveRecent int `yaml:"preserve_recent"`

	// PreserveEarly is how many of the earliest turns stay verbatim.
	PreserveEarly int `yaml:"preserve_early"`

	// MaxReferences bounds each conversation's workflow reference
	// memory; the least-recently-touched reference is evicted first.
	MaxReferences int `yaml:"max_references"`

	// TelemetrySize bounds the token usage telemetry ring.
	TelemetrySize int `yaml:"telemetry_size"`

	// SummarizerTimeout bounds a single external summarization call.
	SummarizerTimeout time.Duration `yaml:"summarizer_timeout"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		StorageDir:         "storage",
		MaxTurns:           15,
		CacheTTL:           5 * time.Minute,
		ContextWindowLimit: 32000,
		SummaryThreshold:   0.70,
		PreserveRecent:     5,
		PreserveEarly:      2,
		MaxReferences:      50,
		TelemetrySize:      100,
		SummarizerTimeout:  30 * time.Second,
	}
}

// Load reads a YAML config file layered over the defaults. Fields absent
// from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the components cannot operate under.
func (c Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("config: storage_dir must not be empty")
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("config: max_turns must be positive, got %d", c.MaxTurns)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: cache_ttl must be positive, got %s", c.CacheTTL)
	}
	if c.ContextWindowLimit <= 0 {
		return fmt.Errorf("config: context_window_limit must be positive, got %d", c.ContextWindowLimit)
	}
	if c.SummaryThreshold <= 0 || c.SummaryThreshold > 1 {
		return fmt.Errorf("config: summary_threshold must be in (0, 1], got %v", c.SummaryThreshold)
	}
	if c.PreserveRecent < 0 || c.PreserveEarly < 0 {
		return fmt.Errorf("config: preserve_recent and preserve_early must not be negative")
	}
	if c.PreserveRecent+c.PreserveEarly > c.MaxTurns {
		return fmt.Errorf("config: preserve_recent (%d) + preserve_early (%d) exceeds max_turns (%d)",
			c.PreserveRecent, c.PreserveEarly, c.MaxTurns)
	}
	if c.MaxReferences <= 0 {
		return fmt.Errorf("config: max_references must be positive, got %d", c.MaxReferences)
	}
	if c.TelemetrySize <= 0 {
		return fmt.Errorf("config: telemetry_size must be positive, got %d", c.TelemetrySize)
	}
	return nil
}
