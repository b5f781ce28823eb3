package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/config"
	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/memory"
)

var memoryWorker string

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and maintain the interaction store",
}

var memoryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-worker metrics and trends",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		workers := []string{memoryWorker}
		if memoryWorker == "" {
			workers, err = store.Workers()
			if err != nil {
				return err
			}
		}
		if len(workers) == 0 {
			fmt.Println("no interactions recorded yet")
			return nil
		}

		bold := color.New(color.Bold)
		for _, name := range workers {
			m, err := store.Metrics(name)
			if err != nil {
				return err
			}
			bold.Println(name)
			fmt.Printf("  interactions: %d\n", m.Count)
			fmt.Printf("  success rate: %.0f%%\n", m.SuccessRate*100)
			fmt.Printf("  avg time:     %.1fs\n", m.AvgTimeSeconds)
			fmt.Printf("  avg tokens:   %.0f\n", m.AvgTokens)
			fmt.Printf("  trend:        %s\n", m.Trend)
		}
		return nil
	},
}

var memoryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump interactions as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		out, err := store.Export(memoryWorker)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var memoryPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old interactions, preserving recent successes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		olderThan := time.Duration(cfg.Memory.PruneAfterDays) * 24 * time.Hour
		grace := time.Duration(cfg.Memory.SuccessGraceDays) * 24 * time.Hour
		deleted, err := store.Prune(olderThan, grace)
		if err != nil {
			return err
		}
		fmt.Printf("pruned %d interactions (cutoff %dd, success grace %dd)\n",
			deleted, cfg.Memory.PruneAfterDays, cfg.Memory.SuccessGraceDays)
		return nil
	},
}

func openStore() (*memory.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	dbPath := cfg.Memory.DBPath
	if dbPath == "" {
		dbPath = memory.DefaultDBPath()
	}
	return memory.NewStore(dbPath)
}

func init() {
	memoryCmd.PersistentFlags().StringVarP(&memoryWorker, "worker", "w", "", "restrict to one worker")
	memoryCmd.AddCommand(memoryStatsCmd)
	memoryCmd.AddCommand(memoryExportCmd)
	memoryCmd.AddCommand(memoryPruneCmd)
}
