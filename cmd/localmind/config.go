package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify LocalMind configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/localmind/config.yaml
Project-specific overrides can be placed in .localmind.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("anthropic.aws_region: %s\n", cfg.Anthropic.AWSRegion)
	fmt.Printf("anthropic.aws_profile: %s\n", cfg.Anthropic.AWSProfile)
	fmt.Printf("defaults.mode: %s\n", cfg.Defaults.Mode)
	fmt.Printf("defaults.model: %s\n", cfg.Defaults.Model)
	fmt.Printf("defaults.worker_timeout: %s\n", cfg.Defaults.WorkerTimeout)
	fmt.Printf("cache.capacity: %d\n", cfg.Cache.Capacity)
	fmt.Printf("cache.similarity_threshold: %g\n", cfg.Cache.SimilarityThreshold)
	fmt.Printf("memory.db_path: %s\n", cfg.Memory.DBPath)
	fmt.Printf("memory.prune_after_days: %d\n", cfg.Memory.PruneAfterDays)
	fmt.Printf("memory.success_grace_days: %d\n", cfg.Memory.SuccessGraceDays)
	fmt.Printf("resilience.retries: %d\n", cfg.Resilience.Retries)
	fmt.Printf("resilience.breaker_threshold: %d\n", cfg.Resilience.BreakerThreshold)
	fmt.Printf("resilience.breaker_reset: %s\n", cfg.Resilience.BreakerReset)
	fmt.Printf("tui.refresh_rate: %s\n", cfg.TUI.RefreshRate)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "anthropic.aws_profile":
		return cfg.Anthropic.AWSProfile, nil
	case "defaults.mode":
		return cfg.Defaults.Mode, nil
	case "defaults.model":
		return cfg.Defaults.Model, nil
	case "defaults.worker_timeout":
		return cfg.Defaults.WorkerTimeout.String(), nil
	case "cache.capacity":
		return strconv.Itoa(cfg.Cache.Capacity), nil
	case "cache.similarity_threshold":
		return strconv.FormatFloat(cfg.Cache.SimilarityThreshold, 'g', -1, 64), nil
	case "memory.db_path":
		return cfg.Memory.DBPath, nil
	case "memory.prune_after_days":
		return strconv.Itoa(cfg.Memory.PruneAfterDays), nil
	case "memory.success_grace_days":
		return strconv.Itoa(cfg.Memory.SuccessGraceDays), nil
	case "resilience.retries":
		return strconv.Itoa(cfg.Resilience.Retries), nil
	case "resilience.breaker_threshold":
		return strconv.Itoa(cfg.Resilience.BreakerThreshold), nil
	case "resilience.breaker_reset":
		return cfg.Resilience.BreakerReset.String(), nil
	case "tui.refresh_rate":
		return cfg.TUI.RefreshRate.String(), nil
	}
	return "", fmt.Errorf("unknown configuration key %q", key)
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "defaults.mode":
		cfg.Defaults.Mode = value
	case "defaults.model":
		cfg.Defaults.Model = value
	case "defaults.worker_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q", value)
		}
		cfg.Defaults.WorkerTimeout = d
	case "cache.capacity":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid capacity %q", value)
		}
		cfg.Cache.Capacity = n
	case "cache.similarity_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid threshold %q (want 0-1)", value)
		}
		cfg.Cache.SimilarityThreshold = f
	case "memory.db_path":
		cfg.Memory.DBPath = value
	case "memory.prune_after_days":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid day count %q", value)
		}
		cfg.Memory.PruneAfterDays = n
	case "memory.success_grace_days":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid day count %q", value)
		}
		cfg.Memory.SuccessGraceDays = n
	case "resilience.retries":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid retry count %q", value)
		}
		cfg.Resilience.Retries = n
	case "resilience.breaker_threshold":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid threshold %q", value)
		}
		cfg.Resilience.BreakerThreshold = n
	case "resilience.breaker_reset":
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration %q", value)
		}
		cfg.Resilience.BreakerReset = d
	case "tui.refresh_rate":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q", value)
		}
		cfg.TUI.RefreshRate = d
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}
