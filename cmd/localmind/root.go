package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "localmind",
	Short: "Dependency-aware multi-agent research",
	Long: `LocalMind coordinates a small collective of LLM-backed research workers.

A research query is analyzed, planned into dependency-ordered execution
levels, and run with per-worker retry, circuit breaking, and fallbacks.
Findings flow between phases through structured handoffs and end in a
synthesized report, optionally scored by a quality auditor.

Results are cached by query similarity and logged to a durable interaction
store that feeds per-worker metrics and trend reporting.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(memoryCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
