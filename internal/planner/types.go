// Package planner turns table diffs and a dependency resolution into an
// ordered migration plan.
package planner

import (
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// StepKind identifies what a migration step does to the target.
type StepKind string

const (
	// StepCreateTable creates a table that does not exist on the target.
	StepCreateTable StepKind = "create_table"
	// StepAlterStructure applies column, index and foreign key changes in place.
	StepAlterStructure StepKind = "alter_structure"
	// StepRecreateTable rebuilds a table through a temporary copy, preserving
	// the rows of columns both versions share.
	StepRecreateTable StepKind = "recreate_table"
	// StepAddForeignKey applies one deferred foreign key constraint.
	StepAddForeignKey StepKind = "add_foreign_key"
	// StepSyncData replaces a maintained table's rows with the source's rows.
	StepSyncData StepKind = "sync_data"
)

// RecreatePayload carries what the executor needs to rebuild a table.
type RecreatePayload struct {
	Definition *schema.TableDefinition // desired structure
	TempName   string                  // name of the transitional table
	// ColumnMapping lists the columns present in both the old and the new
	// structure, in new-structure order. Only these survive the rebuild.
	ColumnMapping []string
}

// MigrationStep is one unit of work against the target. Statements are
// executed in order inside a single transaction; the executor never reorders
// or merges steps.
type MigrationStep struct {
	Kind       StepKind
	Table      string
	Statements []string
	Recreate   *RecreatePayload             // set for StepRecreateTable
	ForeignKey *schema.ForeignKeyDefinition // set for StepAddForeignKey
}

// MigrationPlan is the ordered list of steps for one promotion run.
type MigrationPlan struct {
	Steps []MigrationStep
}

// Empty reports whether the plan contains no work.
func (p *MigrationPlan) Empty() bool {
	return len(p.Steps) == 0
}

// Summary returns the number of steps per kind.
func (p *MigrationPlan) Summary() map[StepKind]int {
	summary := make(map[StepKind]int)
	for _, step := range p.Steps {
		summary[step.Kind]++
	}
	return summary
}

// Tables returns the distinct tables the plan touches, in first-touched order.
func (p *MigrationPlan) Tables() []string {
	seen := make(map[string]bool)
	var tables []string
	for _, step := range p.Steps {
		if !seen[step.Table] {
			seen[step.Table] = true
			tables = append(tables, step.Table)
		}
	}
	return tables
}
