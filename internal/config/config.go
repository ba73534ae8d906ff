// Package config loads Boternity's root YAML configuration, mirroring the
// teacher's internal/config/config.go per-concern sub-struct layout
// (LLMConfig, SkillsConfig, VectorMemoryConfig, ...) but scoped to the
// concerns this repo actually wires: providers/fallback, skills, memory,
// the chat store, and workflow scheduling.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boternity/boternity/internal/memory"
	"github.com/boternity/boternity/internal/skills"
)

// Config is the top-level Boternity configuration.
type Config struct {
	Store    StoreConfig         `yaml:"store"`
	LLM      LLMConfig           `yaml:"llm"`
	Skills   skills.SkillsConfig `yaml:"skills"`
	Memory   memory.Config       `yaml:"memory"`
	Workflow WorkflowConfig      `yaml:"workflow"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// StoreConfig selects and configures the relational/session backend
// (internal/store's sqlite default, or internal/sessions.PostgresStore).
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// SQLitePath is the database file path when Driver is "sqlite".
	// ":memory:" is accepted for ephemeral runs.
	SQLitePath string `yaml:"sqlite_path"`
	// PostgresDSN configures internal/sessions.PostgresStore when Driver is
	// "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig configures provider credentials and the fallback chain,
// mirroring the teacher's config_llm.go shape (DefaultProvider,
// per-provider credentials, FallbackChain) trimmed to the three providers
// internal/providers actually adapts.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
	FallbackChain   []string                     `yaml:"fallback_chain"`
}

// LLMProviderConfig holds one provider's credentials/endpoint override.
type LLMProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
	Region       string `yaml:"region"` // bedrock only
}

// WorkflowConfig configures the DAG runner's concurrency bound and
// checkpoint interval. No cron scheduler is wired in: cron entries in
// WorkflowDefinition.Triggers are parsed but nothing in this module fires
// them.
type WorkflowConfig struct {
	MaxConcurrentSteps int           `yaml:"max_concurrent_steps"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// LoggingConfig configures the root *slog.Logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Load reads path, expands ${VAR}-style environment references (matching
// the teacher loader's os.ExpandEnv step, without its $include/JSON5
// machinery — neither is exercised by any SPEC_FULL.md component), and
// applies defaults via Normalize.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Normalize fills in defaults for any zero-valued field a deployment
// didn't set explicitly.
func (c *Config) Normalize() {
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "boternity.db"
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
	if c.Workflow.MaxConcurrentSteps <= 0 {
		c.Workflow.MaxConcurrentSteps = 8
	}
	if c.Workflow.CheckpointInterval <= 0 {
		c.Workflow.CheckpointInterval = 5 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
