package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "boternity.yaml")
	if err := os.WriteFile(path, []byte("llm:\n  default_provider: openai\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Fatalf("expected configured provider to survive normalization, got %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("expected default store driver sqlite, got %q", cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != "boternity.db" {
		t.Fatalf("expected default sqlite path, got %q", cfg.Store.SQLitePath)
	}
	if cfg.Workflow.MaxConcurrentSteps != 8 {
		t.Fatalf("expected default max concurrent steps 8, got %d", cfg.Workflow.MaxConcurrentSteps)
	}
	if cfg.Workflow.CheckpointInterval != 5*time.Second {
		t.Fatalf("expected default checkpoint interval, got %v", cfg.Workflow.CheckpointInterval)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("BOTERNITY_TEST_API_KEY", "secret-value")
	dir := t.TempDir()
	path := filepath.Join(dir, "boternity.yaml")
	content := "llm:\n  providers:\n    anthropic:\n      api_key: ${BOTERNITY_TEST_API_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "secret-value" {
		t.Fatalf("expected expanded API key, got %+v", cfg.LLM.Providers["anthropic"])
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/boternity.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestNormalizeDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "postgres", SQLitePath: "custom.db"}}
	cfg.Normalize()
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected explicit driver to survive, got %q", cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != "custom.db" {
		t.Fatalf("expected explicit sqlite path to survive, got %q", cfg.Store.SQLitePath)
	}
}
