package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile    string
	logLevel   string
	logFormat  string
	batchSize  int
	skipBackup bool
)

var rootCmd = &cobra.Command{
	Use:   "dbpromote",
	Short: "MySQL Schema & Data Promotion",
	Long: `A production-grade CLI tool for promoting MySQL schema changes from a
development database to production, with dependency-safe ordering and a
restorable backup taken before any change.

Features:
  - Structural diff of columns, indexes and foreign keys
  - Deterministic creation order via topological sorting
  - Foreign key deferral for reference cycles
  - Pre-change backup with retention pruning
  - Per-step transactional execution
  - Full data re-sync for maintained tables`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "dbpromote.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override batch size (rows per INSERT during data sync)")

	// Safety overrides
	rootCmd.PersistentFlags().BoolVar(&skipBackup, "skip-backup", false,
		"Skip the pre-change backup (use with caution)")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel   string
	LogFormat  string
	BatchSize  int
	SkipBackup bool
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		BatchSize:  batchSize,
		SkipBackup: skipBackup,
	}
}
