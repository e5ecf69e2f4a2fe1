package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/database"
	"github.com/dbsmedya/dbpromote/internal/executor"
	"github.com/dbsmedya/dbpromote/internal/lock"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/promote"
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote schema and maintained data from source to target",
	Long: `Promote aligns the target database's structure with the source and
re-synchronizes the rows of maintained tables.

The promotion follows these steps:
  1. Compare every source table against the target
  2. Order the changes so referenced tables come first
  3. Back up every table the plan touches
  4. Apply each step in its own transaction
  5. Truncate and repopulate maintained tables, verifying row counts

A MySQL advisory lock on the target serializes concurrent runs. Any
step failure halts the run; completed steps stay committed and the
backup provides the restore point.

Example:
  dbpromote promote --config dbpromote.yaml`,
	RunE: runPromote,
}

func init() {
	rootCmd.AddCommand(promoteCmd)
}

func runPromote(cmd *cobra.Command, args []string) error {
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

	// Initialize logger
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Infow("Starting promotion",
		"source", cfg.Source.Database,
		"target", cfg.Target.Database,
		"config", configFile,
	)

	// Create database manager
	dbManager := database.NewManager(cfg)

	// Setup context with signal handling; a signal aborts between steps,
	// the step in flight completes or fails on its own
	ctx := database.SetupSignalHandlerWithCallback(func(sig os.Signal) {
		log.Warnw("Signal received; halting after the current step", "signal", sig.String())
	})

	// Connect to databases
	if err := dbManager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to databases: %w", err)
	}
	defer dbManager.Close()

	// Test connections
	if err := dbManager.Ping(ctx); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}

	// Create orchestrator; it takes the target advisory lock itself
	orch, err := promote.NewOrchestrator(cfg, dbManager, log)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	result, err := orch.Run(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrLockTimeout) {
			return fmt.Errorf("another promotion is already running against %q", cfg.Target.Database)
		}
		printRunSummary(result)
		return fmt.Errorf("promotion failed: %w", err)
	}

	printRunSummary(result)
	return nil
}

// printRunSummary renders the outcome of a promotion run.
func printRunSummary(result *promote.RunResult) {
	if result == nil {
		return
	}

	fmt.Fprintln(outputWriter)
	if result.Success {
		printHeader("Promotion Complete")
	} else {
		printHeader("Promotion Failed")
	}
	fmt.Fprintf(outputWriter, "  Run:      %s\n", result.RunName)
	fmt.Fprintf(outputWriter, "  Steps:    %d\n", result.PlanSteps)
	fmt.Fprintf(outputWriter, "  Duration: %s\n", result.Duration.Round(time.Millisecond))
	if result.BackupName != "" {
		fmt.Fprintf(outputWriter, "  Backup:   %s\n", result.BackupName)
	}

	if result.Report == nil {
		return
	}

	fmt.Fprintln(outputWriter)
	printSection("Step Results")
	for _, stepResult := range result.Report.Results {
		fmt.Fprintf(outputWriter, "  [%d] %s %s %s%s\n",
			stepResult.Index+1,
			statusMarker(stepResult.Status),
			stepResult.Step.Kind,
			stepResult.Step.Table,
			stepAnnotation(stepResult),
		)
	}
	if result.Report.HaltedAt >= 0 {
		halted := result.Report.Results[result.Report.HaltedAt]
		fmt.Fprintf(outputWriter, "\n%s %v\n", color.Red.Render("Halted:"), halted.Err)
	}
}

func statusMarker(status executor.StepStatus) string {
	switch status {
	case executor.StatusCommitted:
		return color.Green.Render("✔")
	case executor.StatusFailed:
		return color.Red.Render("✘")
	default:
		return color.Gray.Render("·")
	}
}

func stepAnnotation(stepResult executor.StepResult) string {
	if stepResult.Status == executor.StatusCommitted && stepResult.RowsSynced > 0 {
		return fmt.Sprintf(" (%d rows)", stepResult.RowsSynced)
	}
	return ""
}
