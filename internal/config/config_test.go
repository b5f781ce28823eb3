package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Defaults.Mode != "auto" {
		t.Errorf("expected default mode 'auto', got %q", cfg.Defaults.Mode)
	}
	if cfg.Defaults.WorkerTimeout != 2*time.Minute {
		t.Errorf("expected worker timeout 2m, got %v", cfg.Defaults.WorkerTimeout)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("expected cache capacity 1000, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.SimilarityThreshold != 0.9 {
		t.Errorf("expected similarity threshold 0.9, got %f", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Memory.PruneAfterDays != 30 {
		t.Errorf("expected prune cutoff 30 days, got %d", cfg.Memory.PruneAfterDays)
	}
	if cfg.Memory.SuccessGraceDays != 7 {
		t.Errorf("expected success grace 7 days, got %d", cfg.Memory.SuccessGraceDays)
	}
	if cfg.Resilience.Retries != 3 {
		t.Errorf("expected 3 retries, got %d", cfg.Resilience.Retries)
	}
	if cfg.Resilience.BreakerThreshold != 5 {
		t.Errorf("expected breaker threshold 5, got %d", cfg.Resilience.BreakerThreshold)
	}
	if cfg.Resilience.BreakerReset != 5*time.Minute {
		t.Errorf("expected breaker reset 5m, got %v", cfg.Resilience.BreakerReset)
	}
	if cfg.TUI.RefreshRate != 100*time.Millisecond {
		t.Errorf("expected refresh rate 100ms, got %v", cfg.TUI.RefreshRate)
	}
}

func TestLoadFromPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `anthropic:
  api_key: sk-ant-test-key
  use_bedrock: true
  aws_region: us-west-2
defaults:
  mode: expert
  model: claude-sonnet-4-20250514
  worker_timeout: 3m
cache:
  capacity: 50
  similarity_threshold: 0.8
memory:
  prune_after_days: 14
resilience:
  retries: 2
  breaker_reset: 90s
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Anthropic.APIKey != "sk-ant-test-key" {
		t.Errorf("unexpected api key %q", cfg.Anthropic.APIKey)
	}
	if !cfg.Anthropic.UseBedrock || cfg.Anthropic.AWSRegion != "us-west-2" {
		t.Errorf("bedrock settings not loaded: %+v", cfg.Anthropic)
	}
	if cfg.Defaults.Mode != "expert" {
		t.Errorf("expected mode 'expert', got %q", cfg.Defaults.Mode)
	}
	if cfg.Defaults.WorkerTimeout != 3*time.Minute {
		t.Errorf("expected worker timeout 3m, got %v", cfg.Defaults.WorkerTimeout)
	}
	if cfg.Cache.Capacity != 50 {
		t.Errorf("expected capacity 50, got %d", cfg.Cache.Capacity)
	}
	if cfg.Resilience.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", cfg.Resilience.Retries)
	}
	if cfg.Resilience.BreakerReset != 90*time.Second {
		t.Errorf("expected breaker reset 90s, got %v", cfg.Resilience.BreakerReset)
	}
	// Unset keys keep their defaults.
	if cfg.Memory.SuccessGraceDays != 7 {
		t.Errorf("expected default success grace, got %d", cfg.Memory.SuccessGraceDays)
	}
	if cfg.Resilience.BreakerThreshold != 5 {
		t.Errorf("expected default breaker threshold, got %d", cfg.Resilience.BreakerThreshold)
	}
}

func TestLoadFromPathExpandsEnvReferences(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("LOCALMIND_TEST_KEY", "sk-ant-from-env")
	content := "anthropic:\n  api_key: ${LOCALMIND_TEST_KEY}\n"
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-from-env" {
		t.Errorf("env reference not expanded: %q", cfg.Anthropic.APIKey)
	}
}

func TestLoadWorkerSpecs(t *testing.T) {
	tmpDir := t.TempDir()
	rosterPath := filepath.Join(tmpDir, "workers.yaml")

	content := `workers:
  - name: domain-specialist
    role: specialist
  - name: fact-validator
    role: validator
    depends_on: [domain-specialist]
    temperature: 0.2
`
	if err := os.WriteFile(rosterPath, []byte(content), 0600); err != nil {
		t.Fatalf("write roster: %v", err)
	}

	specs, err := LoadWorkerSpecs(rosterPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[1].DependsOn[0] != "domain-specialist" {
		t.Errorf("dependency not parsed: %+v", specs[1])
	}
	if specs[1].Temperature != 0.2 {
		t.Errorf("temperature not parsed: %+v", specs[1])
	}
}

func TestLoadWorkerSpecsMissingFile(t *testing.T) {
	specs, err := LoadWorkerSpecs(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing roster should not error: %v", err)
	}
	if specs != nil {
		t.Errorf("missing roster should yield nil specs, got %v", specs)
	}
}

func TestWatchReloadsOnConfigWrite(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	confDir := filepath.Join(tmpDir, "localmind")
	if err := os.MkdirAll(confDir, 0700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}

	reloaded := make(chan *Config, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go Watch(ctx, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)

	content := "defaults:\n  mode: expert\n"
	if err := os.WriteFile(filepath.Join(confDir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Defaults.Mode != "expert" {
			t.Errorf("reloaded config has mode %q, want expert", cfg.Defaults.Mode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after config write")
	}
}

func TestLoadWorkerSpecsRejectsNameless(t *testing.T) {
	tmpDir := t.TempDir()
	rosterPath := filepath.Join(tmpDir, "workers.yaml")
	if err := os.WriteFile(rosterPath, []byte("workers:\n  - role: specialist\n"), 0600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	if _, err := LoadWorkerSpecs(rosterPath); err == nil {
		t.Error("nameless worker spec should be rejected")
	}
}
