// Package config handles configuration loading and management for LocalMind.
// It supports XDG config paths, project-level overrides, environment
// variables, and a YAML worker roster.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/pkg/models"
)

// Config holds all configuration for LocalMind.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Defaults   DefaultsConfig   `mapstructure:"defaults"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	TUI        TUIConfig        `mapstructure:"tui"`
}

// AnthropicConfig holds model provider settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes requests through AWS Bedrock instead of the direct API.
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// DefaultsConfig holds default values for research runs.
type DefaultsConfig struct {
	// Mode is the worker-selection mode when none is given on the command line.
	Mode string `mapstructure:"mode"`
	// Model is the model used when a worker spec doesn't name one.
	Model string `mapstructure:"model"`
	// WorkerTimeout is the base per-attempt timeout for worker executions.
	WorkerTimeout time.Duration `mapstructure:"worker_timeout"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	Capacity            int     `mapstructure:"capacity"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// MemoryConfig holds interaction store settings.
type MemoryConfig struct {
	// DBPath overrides the default XDG location of the SQLite database.
	DBPath string `mapstructure:"db_path"`
	// PruneAfterDays is the age cutoff for prune runs.
	PruneAfterDays int `mapstructure:"prune_after_days"`
	// SuccessGraceDays preserves recent successes past the cutoff.
	SuccessGraceDays int `mapstructure:"success_grace_days"`
}

// ResilienceConfig tunes per-worker retry and circuit breaker behavior.
// The watcher applies changes to these values while a run is in flight.
type ResilienceConfig struct {
	// Retries is the number of execution attempts per worker call.
	Retries int `mapstructure:"retries"`
	// BreakerThreshold is the windowed error count that opens a breaker.
	BreakerThreshold int `mapstructure:"breaker_threshold"`
	// BreakerReset is how long an open breaker waits before letting a call
	// through again.
	BreakerReset time.Duration `mapstructure:"breaker_reset"`
}

// TUIConfig holds live display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, LOCALMIND_*)
// 2. Project config (.localmind.yaml in current directory or parent)
// 3. User config (~/.config/localmind/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("LOCALMIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("defaults.mode", cfg.Defaults.Mode)
	v.Set("defaults.model", cfg.Defaults.Model)
	v.Set("defaults.worker_timeout", cfg.Defaults.WorkerTimeout.String())
	v.Set("cache.capacity", cfg.Cache.Capacity)
	v.Set("cache.similarity_threshold", cfg.Cache.SimilarityThreshold)
	v.Set("memory.db_path", cfg.Memory.DBPath)
	v.Set("memory.prune_after_days", cfg.Memory.PruneAfterDays)
	v.Set("memory.success_grace_days", cfg.Memory.SuccessGraceDays)
	v.Set("resilience.retries", cfg.Resilience.Retries)
	v.Set("resilience.breaker_threshold", cfg.Resilience.BreakerThreshold)
	v.Set("resilience.breaker_reset", cfg.Resilience.BreakerReset.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("defaults.mode", "auto")
	v.SetDefault("defaults.model", "")
	v.SetDefault("defaults.worker_timeout", "2m")

	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.similarity_threshold", 0.9)

	v.SetDefault("memory.db_path", "")
	v.SetDefault("memory.prune_after_days", 30)
	v.SetDefault("memory.success_grace_days", 7)

	v.SetDefault("resilience.retries", 3)
	v.SetDefault("resilience.breaker_threshold", 5)
	v.SetDefault("resilience.breaker_reset", "5m")

	v.SetDefault("tui.refresh_rate", "100ms")
}

// getUserConfigDir returns the XDG config directory for LocalMind.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "localmind")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "localmind")
	}
	return filepath.Join(home, ".config", "localmind")
}

// findProjectConfig searches for .localmind.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".localmind.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			Mode:          "auto",
			WorkerTimeout: 2 * time.Minute,
		},
		Cache: CacheConfig{
			Capacity:            1000,
			SimilarityThreshold: 0.9,
		},
		Memory: MemoryConfig{
			PruneAfterDays:   30,
			SuccessGraceDays: 7,
		},
		Resilience: ResilienceConfig{
			Retries:          3,
			BreakerThreshold: 5,
			BreakerReset:     5 * time.Minute,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
	}
}

// workerFile is the on-disk shape of a worker roster.
type workerFile struct {
	Workers []models.WorkerSpec `yaml:"workers"`
}

// LoadWorkerSpecs reads a worker roster from a YAML file. An empty path
// looks for workers.yaml in the user config directory; a missing file
// returns nil specs so the caller falls back to the builtin roster.
func LoadWorkerSpecs(path string) ([]models.WorkerSpec, error) {
	if path == "" {
		path = filepath.Join(getUserConfigDir(), "workers.yaml")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading worker roster: %w", err)
	}

	var file workerFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parsing worker roster %s: %w", path, err)
	}

	for i, spec := range file.Workers {
		if spec.Name == "" {
			return nil, fmt.Errorf("worker roster %s: entry %d has no name", path, i)
		}
		if spec.Role == "" {
			return nil, fmt.Errorf("worker roster %s: worker %q has no role", path, spec.Name)
		}
	}
	return file.Workers, nil
}
