package store

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: sqlite\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 8090 {
		t.Errorf("Expected default port 8090, got %d", cfg.Server.Port)
	}
	if cfg.Collect.ChunkSize != 200 {
		t.Errorf("Expected default chunk size 200, got %d", cfg.Collect.ChunkSize)
	}
	if cfg.Collect.Concurrency != 10 {
		t.Errorf("Expected default concurrency 10, got %d", cfg.Collect.Concurrency)
	}
	if len(cfg.Collect.Sources) != 1 || cfg.Collect.Sources[0] != "naver" {
		t.Errorf("Expected default sources [naver], got %v", cfg.Collect.Sources)
	}
	if cfg.Consensus.QuadrantMissingPolicy != "exclude" {
		t.Errorf("Expected default missing policy exclude, got %s", cfg.Consensus.QuadrantMissingPolicy)
	}
	if cfg.Consensus.TargetZoneFVBMin != 1.0 {
		t.Errorf("Expected default FVB threshold 1.0, got %f", cfg.Consensus.TargetZoneFVBMin)
	}
	if cfg.Database.DSN != "consensus-radar.db" {
		t.Errorf("Expected default sqlite DSN, got %s", cfg.Database.DSN)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: postgres
  dsn: "host=localhost user=radar dbname=radar"
collect:
  chunk_size: 50
  concurrency: 4
  sources: [naver, fnguide]
consensus:
  target_year: 2026
  quadrant_missing_policy: default_q2
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if len(cfg.Collect.Sources) != 2 {
		t.Errorf("Expected 2 sources, got %v", cfg.Collect.Sources)
	}
	if cfg.Consensus.TargetYear != 2026 {
		t.Errorf("Expected target year 2026, got %d", cfg.Consensus.TargetYear)
	}
	if cfg.Consensus.QuadrantMissingPolicy != "default_q2" {
		t.Errorf("Expected default_q2 policy, got %s", cfg.Consensus.QuadrantMissingPolicy)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad driver", "database:\n  driver: mysql\n  dsn: x\n"},
		{"bad source", "database:\n  driver: sqlite\ncollect:\n  sources: [yahoo]\n"},
		{"bad policy", "database:\n  driver: sqlite\nconsensus:\n  quadrant_missing_policy: ignore\n"},
		{"negative chunk", "database:\n  driver: sqlite\ncollect:\n  chunk_size: -5\n"},
	}

	for _, tc := range cases {
		path := writeConfig(t, tc.body)
		if _, err := LoadConfig(path); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing config file")
	}
}
