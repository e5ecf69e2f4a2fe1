package cmd

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/dbpromote/internal/graph"
	"github.com/dbsmedya/dbpromote/internal/planner"
)

var planShowSQL bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the migration plan without executing it",
	Long: `Plan compares the source and target schemas and displays the ordered
migration steps a promotion run would execute. Nothing is written to
the target.

The plan shows:
  - Migration steps in dependency order
  - Foreign keys deferred to the end of the run
  - Reference cycles that had to be broken
  - Data sync steps for maintained tables

Example:
  dbpromote plan --config dbpromote.yaml --sql`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planShowSQL, "sql", false,
		"Show the SQL statements of every step")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, planCtx, dbManager, err := capturePlan()
	if err != nil {
		return err
	}
	defer dbManager.Close()

	printHeader("Migration Plan: %s -> %s", cfg.Source.Label, cfg.Target.Label)

	fmt.Fprintln(outputWriter)
	printSection("Overview")
	fmt.Fprintf(outputWriter, "  Source Tables:  %d\n", len(planCtx.SourceNames))
	fmt.Fprintf(outputWriter, "  Target Tables:  %d\n", len(planCtx.TargetNames))
	fmt.Fprintf(outputWriter, "  Tables Differ:  %d\n", planCtx.Diffs.Len())
	fmt.Fprintf(outputWriter, "  Plan Steps:     %d\n", len(planCtx.Plan.Steps))

	if planCtx.Plan.Empty() {
		fmt.Fprintln(outputWriter)
		fmt.Fprintln(outputWriter, color.Green.Render("Target already matches source; nothing to do."))
		return nil
	}

	fmt.Fprintln(outputWriter)
	printSection("Steps")
	printSteps(planCtx.Plan, planShowSQL)

	if len(planCtx.Resolution.DeferredForeignKeys) > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Deferred Foreign Keys")
		for _, fk := range planCtx.Resolution.DeferredForeignKeys {
			fmt.Fprintf(outputWriter, "  • %s on %s -> %s\n",
				fk.Name, fk.Table, fk.ReferencedTable)
		}
	}

	if len(planCtx.Resolution.BrokenCycles) > 0 {
		fmt.Fprintln(outputWriter)
		printSection("Broken Cycles")
		for _, cycle := range planCtx.Resolution.BrokenCycles {
			printCycle(cycle)
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Summary")
	printSummary(planCtx.Plan)

	return nil
}

// printSteps renders the numbered step list. The kind and table columns are
// aligned on visual width.
func printSteps(plan *planner.MigrationPlan, showSQL bool) {
	kindWidth, tableWidth := 0, 0
	for _, step := range plan.Steps {
		if w := runewidth.StringWidth(string(step.Kind)); w > kindWidth {
			kindWidth = w
		}
		if w := runewidth.StringWidth(step.Table); w > tableWidth {
			tableWidth = w
		}
	}

	for i, step := range plan.Steps {
		numStr := fmt.Sprintf("[%d]", i+1)
		fmt.Fprintf(outputWriter, "  %s %s  %s  %s\n",
			padRight(numStr, 5),
			stepColor(step.Kind).Render(padRight(string(step.Kind), kindWidth)),
			padRight(step.Table, tableWidth),
			stepDetail(step),
		)
		if showSQL {
			for _, stmt := range step.Statements {
				fmt.Fprintf(outputWriter, "      %s\n", stmt)
			}
		}
	}
}

// stepDetail returns the per-step annotation shown after the table name.
func stepDetail(step planner.MigrationStep) string {
	switch step.Kind {
	case planner.StepRecreateTable:
		return fmt.Sprintf("(via %s, %d columns carried over)",
			step.Recreate.TempName, len(step.Recreate.ColumnMapping))
	case planner.StepAddForeignKey:
		return fmt.Sprintf("(%s -> %s)", step.ForeignKey.Name, step.ForeignKey.ReferencedTable)
	case planner.StepSyncData:
		return "(truncate and repopulate from source)"
	default:
		statements := "statement"
		if len(step.Statements) != 1 {
			statements = "statements"
		}
		return fmt.Sprintf("(%d %s)", len(step.Statements), statements)
	}
}

func printCycle(cycle graph.CycleInfo) {
	fmt.Fprintf(outputWriter, "  %s %s\n",
		color.Yellow.Render("⚠"),
		strings.Join(cycle.Path, " -> "))
	fmt.Fprintf(outputWriter, "    broken at %s; its foreign keys are applied last\n", cycle.BrokenAt)
}

func printSummary(plan *planner.MigrationPlan) {
	summary := plan.Summary()
	order := []planner.StepKind{
		planner.StepCreateTable,
		planner.StepAlterStructure,
		planner.StepRecreateTable,
		planner.StepAddForeignKey,
		planner.StepSyncData,
	}
	labels := map[planner.StepKind]string{
		planner.StepCreateTable:    "Tables Created",
		planner.StepAlterStructure: "Tables Altered",
		planner.StepRecreateTable:  "Tables Rebuilt",
		planner.StepAddForeignKey:  "Foreign Keys Deferred",
		planner.StepSyncData:       "Tables Re-synced",
	}
	for _, kind := range order {
		if count := summary[kind]; count > 0 {
			fmt.Fprintf(outputWriter, "  %s %d\n", padRight(labels[kind]+":", 23), count)
		}
	}
	fmt.Fprintf(outputWriter, "  %s %d\n", padRight("Total Steps:", 23), len(plan.Steps))
}
