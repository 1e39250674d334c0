package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - windowed admission control for metered LLM APIs",
	Long: `Ganymede tracks per-model token and request consumption over a rolling
minute window and a local-midnight day window, persists the counters across
restarts, and gates callers when a ceiling is reached.

It provides:
  - Per-model request and token ceilings from a YAML limit catalog
  - Durable quota state in SQLite, surviving restarts
  - A usage history journal with per-model aggregation
  - Live quota snapshots and Prometheus metrics`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
