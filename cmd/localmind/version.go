package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Magnussmari/Oxford-AI-Summit-2025-Local-Agents/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("localmind version %s\n", version.Get())
	},
}
