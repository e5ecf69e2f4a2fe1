// Package schema provides table structure definitions and live-instance
// introspection for dbpromote.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dbsmedya/dbpromote/internal/sqlutil"
)

// ColumnDefinition is an immutable snapshot of one column's structure.
type ColumnDefinition struct {
	Name            string
	OrdinalPosition int
	ColumnType      string // full MySQL type, e.g. "varchar(255)" or "int(11) unsigned"
	Nullable        bool
	Default         *string // literal default; nil when the column has none
	DefaultIsNow    bool    // default is the CURRENT_TIMESTAMP sentinel, in any spelling
	AutoIncrement   bool
	Extra           string // remaining attributes, e.g. "on update current_timestamp()"
}

// DefaultEquals compares default values treating the CURRENT_TIMESTAMP
// sentinel as equal regardless of the engine's literal spelling.
func (c *ColumnDefinition) DefaultEquals(other *ColumnDefinition) bool {
	if c.DefaultIsNow || other.DefaultIsNow {
		return c.DefaultIsNow == other.DefaultIsNow
	}
	if c.Default == nil || other.Default == nil {
		return c.Default == nil && other.Default == nil
	}
	return *c.Default == *other.Default
}

// DDL renders the column clause used in CREATE TABLE and ALTER TABLE statements.
// Example: `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP
func (c *ColumnDefinition) DDL() string {
	var b strings.Builder
	b.WriteString(sqlutil.QuoteIdentifier(c.Name))
	b.WriteString(" ")
	b.WriteString(c.ColumnType)

	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}

	switch {
	case c.DefaultIsNow:
		b.WriteString(" DEFAULT CURRENT_TIMESTAMP")
	case c.Default != nil:
		b.WriteString(" DEFAULT ")
		b.WriteString(quoteDefault(*c.Default, c.ColumnType))
	case c.Nullable:
		// Nullable columns without an explicit default get NULL implicitly.
	}

	if c.AutoIncrement {
		b.WriteString(" AUTO_INCREMENT")
	}

	if c.Extra != "" {
		b.WriteString(" ")
		b.WriteString(c.Extra)
	}

	return b.String()
}

// quoteDefault renders a default value literal. Numeric types pass through
// unquoted; everything else is single-quoted with embedded quotes doubled.
func quoteDefault(value, columnType string) string {
	base := strings.ToLower(columnType)
	for _, prefix := range []string{"tinyint", "smallint", "mediumint", "int", "bigint",
		"decimal", "numeric", "float", "double", "bit"} {
		if strings.HasPrefix(base, prefix) {
			return value
		}
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// IndexDefinition is an immutable snapshot of one secondary index.
// Column order is part of the identity: two indexes with the same name but
// different column order are treated as different indexes.
type IndexDefinition struct {
	Name    string
	Columns []string // in seq_in_index order
	Unique  bool
}

// Equals reports whether two index definitions are structurally identical.
func (i IndexDefinition) Equals(other IndexDefinition) bool {
	if i.Name != other.Name || i.Unique != other.Unique || len(i.Columns) != len(other.Columns) {
		return false
	}
	for n, col := range i.Columns {
		if other.Columns[n] != col {
			return false
		}
	}
	return true
}

// ForeignKeyDefinition is an immutable snapshot of one foreign key constraint.
type ForeignKeyDefinition struct {
	Name              string
	Table             string // declaring table
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
}

// SelfReferencing reports whether the constraint references its own table.
func (f ForeignKeyDefinition) SelfReferencing() bool {
	return f.Table == f.ReferencedTable
}

// DDL renders the constraint clause used in ALTER TABLE ... ADD CONSTRAINT.
func (f ForeignKeyDefinition) DDL() string {
	var b strings.Builder
	b.WriteString("CONSTRAINT ")
	b.WriteString(sqlutil.QuoteIdentifier(f.Name))
	b.WriteString(" FOREIGN KEY (")
	b.WriteString(sqlutil.ColumnList(f.Columns))
	b.WriteString(") REFERENCES ")
	b.WriteString(sqlutil.QuoteIdentifier(f.ReferencedTable))
	b.WriteString(" (")
	b.WriteString(sqlutil.ColumnList(f.ReferencedColumns))
	b.WriteString(")")

	if f.OnDelete != "" && f.OnDelete != "NO ACTION" && f.OnDelete != "RESTRICT" {
		b.WriteString(" ON DELETE ")
		b.WriteString(f.OnDelete)
	}
	if f.OnUpdate != "" && f.OnUpdate != "NO ACTION" && f.OnUpdate != "RESTRICT" {
		b.WriteString(" ON UPDATE ")
		b.WriteString(f.OnUpdate)
	}

	return b.String()
}

// TableDefinition is an immutable snapshot of one table's structure, captured
// from a single instance at a single point in time. Column order is
// semantically significant and preserved exactly as stored.
type TableDefinition struct {
	Name        string
	Columns     []ColumnDefinition // in ordinal position order
	PrimaryKey  []string
	Indexes     map[string]IndexDefinition
	ForeignKeys map[string]ForeignKeyDefinition
}

// Column returns the definition for the named column, or nil if absent.
func (t *TableDefinition) Column(name string) *ColumnDefinition {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns all column names in ordinal order.
func (t *TableDefinition) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// IndexNames returns index names sorted ascending for deterministic iteration.
func (t *TableDefinition) IndexNames() []string {
	names := make([]string, 0, len(t.Indexes))
	for name := range t.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForeignKeyNames returns foreign key names sorted ascending for
// deterministic iteration.
func (t *TableDefinition) ForeignKeyNames() []string {
	names := make([]string, 0, len(t.ForeignKeys))
	for name := range t.ForeignKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateDDL synthesizes a CREATE TABLE statement from the definition.
// Foreign key clauses are omitted when includeForeignKeys is false, so that
// tables in a dependency cycle can be created first and constrained later.
func (t *TableDefinition) CreateDDL(includeForeignKeys bool) string {
	var clauses []string

	for i := range t.Columns {
		clauses = append(clauses, "  "+t.Columns[i].DDL())
	}

	if len(t.PrimaryKey) > 0 {
		clauses = append(clauses, fmt.Sprintf("  PRIMARY KEY (%s)", sqlutil.ColumnList(t.PrimaryKey)))
	}

	for _, name := range t.IndexNames() {
		idx := t.Indexes[name]
		kind := "KEY"
		if idx.Unique {
			kind = "UNIQUE KEY"
		}
		clauses = append(clauses, fmt.Sprintf("  %s %s (%s)",
			kind, sqlutil.QuoteIdentifier(idx.Name), sqlutil.ColumnList(idx.Columns)))
	}

	if includeForeignKeys {
		for _, name := range t.ForeignKeyNames() {
			clauses = append(clauses, "  "+t.ForeignKeys[name].DDL())
		}
	}

	return fmt.Sprintf("CREATE TABLE %s (\n%s\n)",
		sqlutil.QuoteIdentifier(t.Name), strings.Join(clauses, ",\n"))
}

// normalizeDefault detects the CURRENT_TIMESTAMP sentinel in any of the
// spellings MySQL and MariaDB report for it.
func normalizeDefault(raw string) (literal string, isNow bool) {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "current_timestamp", "current_timestamp()", "now()":
		return "", true
	}
	return trimmed, false
}
