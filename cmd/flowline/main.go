// Package main provides the entry point for the flowline pipeline CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowline",
	Short: "Flowline pipeline execution core",
	Long:  "Flowline executes declarative stage pipelines with checkpointed resume, budget governance, quality gating, and deduplicated delivery.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
