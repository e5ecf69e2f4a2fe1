package cmd

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/database"
	"github.com/dbsmedya/dbpromote/internal/diff"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/promote"
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show structural differences between source and target",
	Long: `Diff compares every table of the source database against the target
and lists the structural discrepancies, without touching the target.

The diff shows per table:
  - Missing tables (to be created)
  - Column additions, drops and modifications
  - Index and foreign key changes
  - Tables whose column order forces a rebuild

Example:
  dbpromote diff --config dbpromote.yaml`,
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	cfg, planCtx, dbManager, err := capturePlan()
	if err != nil {
		return err
	}
	defer dbManager.Close()

	printHeader("Schema Diff: %s -> %s", cfg.Source.Label, cfg.Target.Label)
	fmt.Fprintln(outputWriter)

	if planCtx.Diffs.Len() == 0 {
		fmt.Fprintln(outputWriter, color.Green.Render("No differences; target already matches source."))
		return nil
	}

	for el := planCtx.Diffs.Front(); el != nil; el = el.Next() {
		printTableDiff(el.Value)
		fmt.Fprintln(outputWriter)
	}

	fmt.Fprintf(outputWriter, "%d table(s) differ\n", planCtx.Diffs.Len())
	return nil
}

// capturePlan loads configuration, connects to both databases and computes
// the plan context shared by the diff and plan commands.
func capturePlan() (*config.Config, *promote.PlanContext, *database.Manager, error) {
	configFile := GetConfigFile()

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	overrides := GetCLIOverrides()
	cfg.ApplyOverrides(overrides.LogLevel, overrides.LogFormat,
		overrides.BatchSize, overrides.SkipBackup)

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	dbManager := database.NewManager(cfg)

	ctx := database.SetupSignalHandler()
	if err := dbManager.Connect(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to databases: %w", err)
	}
	if err := dbManager.Ping(ctx); err != nil {
		dbManager.Close()
		return nil, nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	orch, err := promote.NewOrchestrator(cfg, dbManager, log)
	if err != nil {
		dbManager.Close()
		return nil, nil, nil, err
	}

	planCtx, err := orch.Plan(ctx)
	if err != nil {
		dbManager.Close()
		return nil, nil, nil, fmt.Errorf("failed to compute plan: %w", err)
	}
	return cfg, planCtx, dbManager, nil
}

// printTableDiff renders one table's discrepancies.
func printTableDiff(d *diff.TableDiff) {
	printSection(d.Table)

	if d.CreateOnly {
		fmt.Fprintf(outputWriter, "  %s table missing on target\n", color.Green.Render("+"))
		fmt.Fprintf(outputWriter, "    %d column(s), %d index(es), %d foreign key(s)\n",
			len(d.Source.Columns), len(d.Source.Indexes), len(d.Source.ForeignKeys))
		return
	}

	if d.RequiresRecreate {
		fmt.Fprintf(outputWriter, "  %s column order differs; table will be rebuilt\n",
			color.Magenta.Render("!"))
	}

	for _, op := range d.ColumnOps {
		switch op.Kind {
		case diff.ColumnAddAfter:
			position := "FIRST"
			if op.After != "" {
				position = fmt.Sprintf("AFTER %s", op.After)
			}
			fmt.Fprintf(outputWriter, "  %s column %s %s (%s)\n",
				color.Green.Render("+"), op.Column, op.Definition.ColumnType, position)
		case diff.ColumnDrop:
			fmt.Fprintf(outputWriter, "  %s column %s\n", color.Red.Render("-"), op.Column)
		case diff.ColumnModifyType:
			fmt.Fprintf(outputWriter, "  %s column %s type -> %s\n",
				color.Yellow.Render("~"), op.Column, op.Definition.ColumnType)
		case diff.ColumnModifyNull:
			nullability := "NOT NULL"
			if op.Definition.Nullable {
				nullability = "NULL"
			}
			fmt.Fprintf(outputWriter, "  %s column %s nullability -> %s\n",
				color.Yellow.Render("~"), op.Column, nullability)
		case diff.ColumnModifyDefault:
			fmt.Fprintf(outputWriter, "  %s column %s default -> %s\n",
				color.Yellow.Render("~"), op.Column, describeDefault(op))
		}
	}

	for _, op := range d.IndexOps {
		marker := color.Green.Render("+")
		if op.Kind == diff.SetOpDrop {
			marker = color.Red.Render("-")
		}
		kind := "index"
		if op.Index.Unique {
			kind = "unique index"
		}
		fmt.Fprintf(outputWriter, "  %s %s %s (%s)\n",
			marker, kind, op.Index.Name, strings.Join(op.Index.Columns, ", "))
	}

	for _, op := range d.ForeignKeyOps {
		marker := color.Green.Render("+")
		if op.Kind == diff.SetOpDrop {
			marker = color.Red.Render("-")
		}
		fmt.Fprintf(outputWriter, "  %s foreign key %s -> %s (%s)\n",
			marker, op.ForeignKey.Name, op.ForeignKey.ReferencedTable,
			strings.Join(op.ForeignKey.Columns, ", "))
	}
}

func describeDefault(op diff.ColumnOp) string {
	switch {
	case op.Definition.DefaultIsNow:
		return "CURRENT_TIMESTAMP"
	case op.Definition.Default == nil:
		return "none"
	default:
		return fmt.Sprintf("%q", *op.Definition.Default)
	}
}
