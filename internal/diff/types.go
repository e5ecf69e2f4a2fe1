// Package diff compares table definitions between a source and target
// instance and produces ordered structural discrepancies.
package diff

import (
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// ColumnOpKind identifies a column-level discrepancy.
type ColumnOpKind string

const (
	// ColumnAddAfter adds a column missing from the target, positioned after
	// the named column (or first when After is empty).
	ColumnAddAfter ColumnOpKind = "add_after"
	// ColumnDrop removes a column present only on the target.
	ColumnDrop ColumnOpKind = "drop"
	// ColumnModifyType changes a column whose data type differs.
	ColumnModifyType ColumnOpKind = "modify_type"
	// ColumnModifyNull changes a column whose nullability differs.
	ColumnModifyNull ColumnOpKind = "modify_null"
	// ColumnModifyDefault changes a column whose default value differs.
	ColumnModifyDefault ColumnOpKind = "modify_default"
)

// ColumnOp is one column-level operation in a TableDiff.
type ColumnOp struct {
	Kind   ColumnOpKind
	Column string
	// After names the immediately preceding column in source order for
	// ColumnAddAfter; empty means the column goes first.
	After string
	// Definition is the source column definition for add and modify
	// operations; nil for drops.
	Definition *schema.ColumnDefinition
}

// SetOpKind identifies an add or drop of an index or foreign key.
type SetOpKind string

const (
	SetOpAdd  SetOpKind = "add"
	SetOpDrop SetOpKind = "drop"
)

// IndexOp is one index-level operation in a TableDiff.
type IndexOp struct {
	Kind  SetOpKind
	Index schema.IndexDefinition
}

// ForeignKeyOp is one foreign-key-level operation in a TableDiff.
type ForeignKeyOp struct {
	Kind       SetOpKind
	ForeignKey schema.ForeignKeyDefinition
}

// TableDiff is the ordered set of discrepancies for one logical table.
// It is produced fresh per comparison and read-only once produced.
type TableDiff struct {
	Table string

	// CreateOnly is set when the table does not exist at the target; no
	// finer-grained operations are emitted in that case.
	CreateOnly bool

	// RequiresRecreate is set when the relative order of common columns
	// differs between source and target. An add-after sequence cannot
	// reliably reorder existing columns, so the table must be recreated
	// with the canonical column order and its data migrated across.
	RequiresRecreate bool

	ColumnOps     []ColumnOp
	IndexOps      []IndexOp
	ForeignKeyOps []ForeignKeyOp

	// Source is the definition the target is being aligned to.
	Source *schema.TableDefinition
	// Target is the definition found at the destination; nil when CreateOnly.
	Target *schema.TableDefinition
}

// Empty reports whether the diff carries no work at all.
func (d *TableDiff) Empty() bool {
	return !d.CreateOnly && !d.RequiresRecreate &&
		len(d.ColumnOps) == 0 && len(d.IndexOps) == 0 && len(d.ForeignKeyOps) == 0
}
