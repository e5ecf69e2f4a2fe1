package diff

import (
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// Differ compares source and target table definitions.
// Output is deterministic: column operations follow source ordinal order,
// index and foreign key operations are sorted by name.
type Differ struct {
	logger *logger.Logger
}

// NewDiffer creates a Differ.
func NewDiffer(log *logger.Logger) *Differ {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Differ{logger: log}
}

// Diff compares one source table definition against the target's version.
// Pass a nil target when the table does not exist at the destination.
func (d *Differ) Diff(source, target *schema.TableDefinition) *TableDiff {
	td := &TableDiff{
		Table:  source.Name,
		Source: source,
		Target: target,
	}

	if target == nil {
		td.CreateOnly = true
		return td
	}

	d.diffColumns(td, source, target)
	d.diffIndexes(td, source, target)
	d.diffForeignKeys(td, source, target)

	return td
}

// DiffAll diffs every source table against its target counterpart, in sorted
// source-name order. The ordered map pins iteration order for the planner.
func (d *Differ) DiffAll(
	sourceDefs map[string]*schema.TableDefinition,
	sourceNames []string,
	targetDefs map[string]*schema.TableDefinition,
) *orderedmap.OrderedMap[string, *TableDiff] {
	diffs := orderedmap.NewOrderedMap[string, *TableDiff]()

	for _, name := range sourceNames {
		source := sourceDefs[name]
		target := targetDefs[name] // nil when absent at destination
		td := d.Diff(source, target)
		diffs.Set(name, td)

		d.logger.Infow("Diff computed",
			"table", name,
			"create", td.CreateOnly,
			"recreate", td.RequiresRecreate,
			"column_ops", len(td.ColumnOps),
			"index_ops", len(td.IndexOps),
			"fk_ops", len(td.ForeignKeyOps),
		)
	}

	return diffs
}

// diffColumns walks both ordered column lists and emits add-after, drop, and
// modify operations. It also decides whether the target must be recreated:
// when the relative order of common columns differs, positional ALTERs cannot
// express the change.
func (d *Differ) diffColumns(td *TableDiff, source, target *schema.TableDefinition) {
	targetCols := make(map[string]*schema.ColumnDefinition, len(target.Columns))
	for i := range target.Columns {
		targetCols[target.Columns[i].Name] = &target.Columns[i]
	}
	sourceCols := make(map[string]bool, len(source.Columns))
	for i := range source.Columns {
		sourceCols[source.Columns[i].Name] = true
	}

	// Walk source columns in ordinal order. "After" always names the
	// preceding column in the source, preserving source ordering intent.
	prev := ""
	for i := range source.Columns {
		col := &source.Columns[i]
		targetCol, exists := targetCols[col.Name]

		if !exists {
			td.ColumnOps = append(td.ColumnOps, ColumnOp{
				Kind:       ColumnAddAfter,
				Column:     col.Name,
				After:      prev,
				Definition: col,
			})
		} else {
			if col.ColumnType != targetCol.ColumnType {
				td.ColumnOps = append(td.ColumnOps, ColumnOp{
					Kind: ColumnModifyType, Column: col.Name, Definition: col,
				})
			}
			if col.Nullable != targetCol.Nullable {
				td.ColumnOps = append(td.ColumnOps, ColumnOp{
					Kind: ColumnModifyNull, Column: col.Name, Definition: col,
				})
			}
			if !col.DefaultEquals(targetCol) {
				td.ColumnOps = append(td.ColumnOps, ColumnOp{
					Kind: ColumnModifyDefault, Column: col.Name, Definition: col,
				})
			}
		}

		prev = col.Name
	}

	// Target-only columns are dropped. Destructive, so worth a warning.
	for i := range target.Columns {
		name := target.Columns[i].Name
		if !sourceCols[name] {
			d.logger.Warnw("Column exists only on target and will be dropped",
				"table", td.Table, "column", name)
			td.ColumnOps = append(td.ColumnOps, ColumnOp{
				Kind:   ColumnDrop,
				Column: name,
			})
		}
	}

	// Compare the relative order of common columns after accounting for
	// additions and removals.
	var sourceCommon, targetCommon []string
	for i := range source.Columns {
		if _, ok := targetCols[source.Columns[i].Name]; ok {
			sourceCommon = append(sourceCommon, source.Columns[i].Name)
		}
	}
	for i := range target.Columns {
		if sourceCols[target.Columns[i].Name] {
			targetCommon = append(targetCommon, target.Columns[i].Name)
		}
	}
	for i := range sourceCommon {
		if sourceCommon[i] != targetCommon[i] {
			td.RequiresRecreate = true
			d.logger.Warnw("Column order differs; table will be recreated",
				"table", td.Table)
			break
		}
	}
}

// diffIndexes compares secondary indexes by name. An index present on both
// sides with a different column list or uniqueness becomes a drop plus add,
// since index column order is significant.
func (d *Differ) diffIndexes(td *TableDiff, source, target *schema.TableDefinition) {
	for _, name := range source.IndexNames() {
		srcIdx := source.Indexes[name]
		tgtIdx, exists := target.Indexes[name]
		if !exists {
			td.IndexOps = append(td.IndexOps, IndexOp{Kind: SetOpAdd, Index: srcIdx})
		} else if !srcIdx.Equals(tgtIdx) {
			td.IndexOps = append(td.IndexOps,
				IndexOp{Kind: SetOpDrop, Index: tgtIdx},
				IndexOp{Kind: SetOpAdd, Index: srcIdx})
		}
	}

	for _, name := range target.IndexNames() {
		if _, exists := source.Indexes[name]; !exists {
			td.IndexOps = append(td.IndexOps, IndexOp{Kind: SetOpDrop, Index: target.Indexes[name]})
		}
	}
}

// diffForeignKeys compares foreign keys by name; a constraint with the same
// name but a different shape becomes a drop plus add.
func (d *Differ) diffForeignKeys(td *TableDiff, source, target *schema.TableDefinition) {
	for _, name := range source.ForeignKeyNames() {
		srcFK := source.ForeignKeys[name]
		tgtFK, exists := target.ForeignKeys[name]
		if !exists {
			td.ForeignKeyOps = append(td.ForeignKeyOps, ForeignKeyOp{Kind: SetOpAdd, ForeignKey: srcFK})
		} else if !foreignKeysEqual(srcFK, tgtFK) {
			td.ForeignKeyOps = append(td.ForeignKeyOps,
				ForeignKeyOp{Kind: SetOpDrop, ForeignKey: tgtFK},
				ForeignKeyOp{Kind: SetOpAdd, ForeignKey: srcFK})
		}
	}

	for _, name := range target.ForeignKeyNames() {
		if _, exists := source.ForeignKeys[name]; !exists {
			d.logger.Warnw("Foreign key exists only on target and will be dropped",
				"table", td.Table, "constraint", name)
			td.ForeignKeyOps = append(td.ForeignKeyOps, ForeignKeyOp{Kind: SetOpDrop, ForeignKey: target.ForeignKeys[name]})
		}
	}
}

func foreignKeysEqual(a, b schema.ForeignKeyDefinition) bool {
	if a.ReferencedTable != b.ReferencedTable ||
		a.OnDelete != b.OnDelete || a.OnUpdate != b.OnUpdate ||
		len(a.Columns) != len(b.Columns) || len(a.ReferencedColumns) != len(b.ReferencedColumns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for i := range a.ReferencedColumns {
		if a.ReferencedColumns[i] != b.ReferencedColumns[i] {
			return false
		}
	}
	return true
}
