package planner

import (
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/dbpromote/internal/diff"
	"github.com/dbsmedya/dbpromote/internal/graph"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/schema"
	"github.com/dbsmedya/dbpromote/internal/sqlutil"
)

// Planner builds migration plans. The plan order is fixed: structural steps
// follow the dependency resolution, deferred foreign keys come after every
// table exists, and data sync runs last.
type Planner struct {
	logger *logger.Logger
}

// NewPlanner creates a Planner.
func NewPlanner(log *logger.Logger) *Planner {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Planner{logger: log}
}

// Build assembles the migration plan for one promotion run.
//
// diffs holds one TableDiff per source table; res orders those tables and
// carries the constraints that must be applied late; maintained names the
// tables whose rows are replaced with the source's after the structure work.
func (p *Planner) Build(
	diffs *orderedmap.OrderedMap[string, *diff.TableDiff],
	res *graph.Resolution,
	maintained []string,
) (*MigrationPlan, error) {
	plan := &MigrationPlan{}

	deferredByTable := make(map[string]map[string]bool)
	for _, fk := range res.DeferredForeignKeys {
		if deferredByTable[fk.Table] == nil {
			deferredByTable[fk.Table] = make(map[string]bool)
		}
		deferredByTable[fk.Table][fk.Name] = true
	}

	// Structural steps in dependency order.
	for _, table := range res.Order {
		td, ok := diffs.Get(table)
		if !ok {
			return nil, fmt.Errorf("resolution orders table %q but no diff was computed for it", table)
		}
		if td.Empty() {
			continue
		}

		deferred := deferredByTable[table]

		switch {
		case td.CreateOnly:
			plan.Steps = append(plan.Steps, p.createStep(td, deferred))
		case td.RequiresRecreate:
			plan.Steps = append(plan.Steps, p.recreateStep(td, deferred))
		default:
			step := p.alterStep(td, deferred)
			if len(step.Statements) > 0 {
				plan.Steps = append(plan.Steps, step)
			}
		}
	}

	// Deferred constraints, once every table exists.
	p.appendDeferredForeignKeys(plan, diffs, res, deferredByTable)

	// Data sync for maintained tables.
	p.appendSyncSteps(plan, diffs, maintained)

	p.logger.Infow("Migration plan built",
		"steps", len(plan.Steps),
		"summary", plan.Summary(),
	)
	return plan, nil
}

// createStep builds a CREATE TABLE step. When any of the table's foreign
// keys was deferred, the statement carries no FK clauses at all; the
// remaining constraints are applied with the deferred batch, after every
// referenced table exists.
func (p *Planner) createStep(td *diff.TableDiff, deferred map[string]bool) MigrationStep {
	includeFKs := len(deferred) == 0
	return MigrationStep{
		Kind:       StepCreateTable,
		Table:      td.Table,
		Statements: []string{td.Source.CreateDDL(includeFKs)},
	}
}

// recreateStep rebuilds a table whose column order cannot be reached with
// positional ALTERs. The transitional table is created without foreign key
// clauses because constraint names are unique per schema; non-deferred
// constraints are re-added right after the rename.
func (p *Planner) recreateStep(td *diff.TableDiff, deferred map[string]bool) MigrationStep {
	source := td.Source
	tempName := "_" + source.Name + "_promote"

	tempDef := *source
	tempDef.Name = tempName

	mapping := commonColumns(source, td.Target)
	quotedCols := sqlutil.ColumnList(mapping)

	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", sqlutil.QuoteIdentifier(tempName)),
		tempDef.CreateDDL(false),
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
			sqlutil.QuoteIdentifier(tempName), quotedCols, quotedCols,
			sqlutil.QuoteIdentifier(source.Name)),
		fmt.Sprintf("DROP TABLE %s", sqlutil.QuoteIdentifier(source.Name)),
		fmt.Sprintf("RENAME TABLE %s TO %s",
			sqlutil.QuoteIdentifier(tempName), sqlutil.QuoteIdentifier(source.Name)),
	}

	for _, name := range source.ForeignKeyNames() {
		if deferred[name] {
			continue
		}
		statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD %s",
			sqlutil.QuoteIdentifier(source.Name), source.ForeignKeys[name].DDL()))
	}

	return MigrationStep{
		Kind:       StepRecreateTable,
		Table:      source.Name,
		Statements: statements,
		Recreate: &RecreatePayload{
			Definition:    source,
			TempName:      tempName,
			ColumnMapping: mapping,
		},
	}
}

// alterStep renders in-place ALTER statements from the diff's operations.
// Multiple modify operations against one column collapse into a single
// MODIFY COLUMN, since the statement always carries the full definition.
func (p *Planner) alterStep(td *diff.TableDiff, deferred map[string]bool) MigrationStep {
	table := sqlutil.QuoteIdentifier(td.Table)
	var statements []string

	modified := make(map[string]bool)
	for _, op := range td.ColumnOps {
		switch op.Kind {
		case diff.ColumnAddAfter:
			position := "FIRST"
			if op.After != "" {
				position = "AFTER " + sqlutil.QuoteIdentifier(op.After)
			}
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
				table, op.Definition.DDL(), position))
		case diff.ColumnDrop:
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
				table, sqlutil.QuoteIdentifier(op.Column)))
		case diff.ColumnModifyType, diff.ColumnModifyNull, diff.ColumnModifyDefault:
			if modified[op.Column] {
				continue
			}
			modified[op.Column] = true
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s",
				table, op.Definition.DDL()))
		}
	}

	for _, op := range td.IndexOps {
		switch op.Kind {
		case diff.SetOpDrop:
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s DROP INDEX %s",
				table, sqlutil.QuoteIdentifier(op.Index.Name)))
		case diff.SetOpAdd:
			kind := "INDEX"
			if op.Index.Unique {
				kind = "UNIQUE INDEX"
			}
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD %s %s (%s)",
				table, kind, sqlutil.QuoteIdentifier(op.Index.Name),
				sqlutil.ColumnList(op.Index.Columns)))
		}
	}

	for _, op := range td.ForeignKeyOps {
		switch op.Kind {
		case diff.SetOpDrop:
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s",
				table, sqlutil.QuoteIdentifier(op.ForeignKey.Name)))
		case diff.SetOpAdd:
			// Deferred constraints are applied with the deferred batch.
			if deferred[op.ForeignKey.Name] {
				continue
			}
			statements = append(statements, fmt.Sprintf("ALTER TABLE %s ADD %s",
				table, op.ForeignKey.DDL()))
		}
	}

	return MigrationStep{
		Kind:       StepAlterStructure,
		Table:      td.Table,
		Statements: statements,
	}
}

// appendDeferredForeignKeys emits one step per constraint that had to wait
// for the full table set, but only where the target actually lacks it.
// For tables created or recreated by this plan, any non-deferred constraint
// dropped from the CREATE also lands here.
func (p *Planner) appendDeferredForeignKeys(
	plan *MigrationPlan,
	diffs *orderedmap.OrderedMap[string, *diff.TableDiff],
	res *graph.Resolution,
	deferredByTable map[string]map[string]bool,
) {
	emitted := make(map[string]map[string]bool)
	emit := func(fk schema.ForeignKeyDefinition) {
		if emitted[fk.Table][fk.Name] {
			return
		}
		if emitted[fk.Table] == nil {
			emitted[fk.Table] = make(map[string]bool)
		}
		emitted[fk.Table][fk.Name] = true

		fkCopy := fk
		plan.Steps = append(plan.Steps, MigrationStep{
			Kind:  StepAddForeignKey,
			Table: fk.Table,
			Statements: []string{fmt.Sprintf("ALTER TABLE %s ADD %s",
				sqlutil.QuoteIdentifier(fk.Table), fk.DDL())},
			ForeignKey: &fkCopy,
		})
	}

	for _, fk := range res.DeferredForeignKeys {
		td, ok := diffs.Get(fk.Table)
		if !ok {
			continue
		}
		if !foreignKeyMissingOnTarget(td, fk.Name) {
			p.logger.Debugw("Deferred foreign key already present on target",
				"table", fk.Table, "constraint", fk.Name)
			continue
		}
		emit(fk)
	}

	// Constraints stripped from a partially-deferred CREATE.
	for _, table := range res.Order {
		deferred := deferredByTable[table]
		if len(deferred) == 0 {
			continue
		}
		td, ok := diffs.Get(table)
		if !ok || !td.CreateOnly {
			continue
		}
		for _, name := range td.Source.ForeignKeyNames() {
			if !deferred[name] {
				emit(td.Source.ForeignKeys[name])
			}
		}
	}
}

// foreignKeyMissingOnTarget reports whether the named constraint must be
// applied to the target: the table is being created or rebuilt, or the diff
// adds the constraint.
func foreignKeyMissingOnTarget(td *diff.TableDiff, name string) bool {
	if td.CreateOnly || td.RequiresRecreate {
		return true
	}
	for _, op := range td.ForeignKeyOps {
		if op.Kind == diff.SetOpAdd && op.ForeignKey.Name == name {
			return true
		}
	}
	return false
}

// appendSyncSteps adds one data sync step per maintained table. A maintained
// table missing from the source snapshot is skipped with a warning; a table
// missing only from the target is created earlier in this same plan, so it
// still syncs.
func (p *Planner) appendSyncSteps(
	plan *MigrationPlan,
	diffs *orderedmap.OrderedMap[string, *diff.TableDiff],
	maintained []string,
) {
	sorted := append([]string(nil), maintained...)
	sort.Strings(sorted)

	for _, table := range sorted {
		if _, ok := diffs.Get(table); !ok {
			p.logger.Warnw("Maintained table not found on source; data sync skipped",
				"table", table)
			continue
		}
		plan.Steps = append(plan.Steps, MigrationStep{
			Kind:  StepSyncData,
			Table: table,
		})
	}
}

// commonColumns returns the columns present in both definitions, in source
// order. Target may be nil.
func commonColumns(source, target *schema.TableDefinition) []string {
	if target == nil {
		return source.ColumnNames()
	}
	targetCols := make(map[string]bool, len(target.Columns))
	for i := range target.Columns {
		targetCols[target.Columns[i].Name] = true
	}
	var common []string
	for i := range source.Columns {
		if targetCols[source.Columns[i].Name] {
			common = append(common, source.Columns[i].Name)
		}
	}
	return common
}
