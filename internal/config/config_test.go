package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsApplied(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.LoadLimit != 5 || cfg.Pipeline.GlobalLimit != 100 {
		t.Fatalf("pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.InboundTopic == "" || cfg.Pipeline.OutboundTopic == "" {
		t.Fatalf("topic defaults missing: %+v", cfg.Pipeline)
	}
	if cfg.Profile.RequestTimeout != 5*time.Second {
		t.Fatalf("profile timeout default: %v", cfg.Profile.RequestTimeout)
	}
	if cfg.IsProduction() {
		t.Fatal("default env must not be production")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_DSN", "postgres://db/override")
	t.Setenv("PIPELINE_LOAD_LIMIT", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
	if cfg.Database.DSN != "postgres://db/override" {
		t.Fatalf("dsn: %s", cfg.Database.DSN)
	}
	if cfg.Pipeline.LoadLimit != 12 {
		t.Fatalf("load limit: %d", cfg.Pipeline.LoadLimit)
	}
}

func TestConfigFileWithDefaultsForGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("env: staging\npipeline:\n  load_limit: 3\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Env != "staging" {
		t.Fatalf("env: %s", cfg.Env)
	}
	if cfg.Pipeline.LoadLimit != 3 {
		t.Fatalf("load limit: %d", cfg.Pipeline.LoadLimit)
	}
	// Fields the file leaves out fall back to defaults.
	if cfg.Pipeline.ConsumerGroup == "" || cfg.Pipeline.DrainTimeout <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg.Pipeline)
	}
}
