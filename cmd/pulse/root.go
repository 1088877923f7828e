package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/pulse/config"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Mobile app analytics backend",
	Long: `Pulse collects events from mobile apps and serves dashboards.

It ingests batched events, computes DAU, sessions, retention, funnels
and screen flows, exports reports and tracks LLM spend.

Quick start:
  pulse serve                 # Start the server
  pulse keys create app-1     # Create an ingestion key

Maintenance:
  pulse aggregate hourly      # Run an aggregation job once
  pulse validate              # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "pulse.yaml", "config file path")
}

// loadConfig reads --config when it exists and PULSE_* variables otherwise.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
