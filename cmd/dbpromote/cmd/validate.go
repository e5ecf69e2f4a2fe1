package cmd

import (
	"context"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/database"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and test database connectivity",
	Long: `Validate checks the configuration file and verifies that both the
source and target databases are reachable.

Checks performed:
  - Configuration syntax and required fields
  - Source / target must be distinct databases
  - Backup and retention settings
  - Database connectivity (source and target)

Example:
  dbpromote validate --config dbpromote.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply CLI overrides
	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.BatchSize, overrides.SkipBackup)

	fmt.Fprintf(outputWriter, "\n=== Configuration Validation ===\n")
	fmt.Fprintf(outputWriter, "Config file: %s\n", configFile)
	fmt.Fprintf(outputWriter, "Source: %s (%s)\n", cfg.Source.Database, cfg.Source.Label)
	fmt.Fprintf(outputWriter, "Target: %s (%s)\n", cfg.Target.Database, cfg.Target.Label)
	fmt.Fprintf(outputWriter, "Maintained tables: %d\n", len(cfg.Tables.Maintained))
	fmt.Fprintf(outputWriter, "Excluded tables: %d\n\n", len(cfg.Tables.Exclude))

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(outputWriter, "%s\n%v\n", color.Red.Render("Configuration invalid:"), err)
		return fmt.Errorf("configuration validation failed")
	}
	fmt.Fprintln(outputWriter, color.Green.Render("Configuration OK"))

	// Create database manager
	dbManager := database.NewManager(cfg)

	// Setup context
	ctx := context.Background()

	// Connect to databases
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}
	defer dbManager.Close()

	// Test connections
	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	fmt.Fprintln(outputWriter, color.Green.Render("Source connection OK"))
	fmt.Fprintln(outputWriter, color.Green.Render("Target connection OK"))

	fmt.Fprintln(outputWriter, "\n=== Validation Complete ===")
	return nil
}
