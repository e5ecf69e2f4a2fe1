package schema

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/sqlutil"
)

// Introspector reads live structural metadata from one MySQL instance.
// All queries are read-only; definitions are returned as fresh snapshots.
type Introspector struct {
	db       *sql.DB
	schema   string // database (schema) name
	instance string // environment label used in errors and events
	logger   *logger.Logger
}

// NewIntrospector creates an Introspector for the given connection.
// The schema name scopes every information_schema query; the instance label
// identifies the side (e.g. "development", "production") in errors.
func NewIntrospector(db *sql.DB, schemaName, instance string, log *logger.Logger) *Introspector {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Introspector{
		db:       db,
		schema:   schemaName,
		instance: instance,
		logger:   log,
	}
}

// ListTables returns all base table names in the schema, sorted ascending.
func (in *Introspector) ListTables(ctx context.Context) ([]string, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := in.db.QueryContext(ctx, query, in.schema)
	if err != nil {
		return nil, &IntrospectionError{Instance: in.instance, Op: "list tables", Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &IntrospectionError{Instance: in.instance, Op: "scan table name", Err: err}
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &IntrospectionError{Instance: in.instance, Op: "list tables", Err: err}
	}

	return tables, nil
}

// TableExists reports whether the named base table exists in the schema.
func (in *Introspector) TableExists(ctx context.Context, table string) (bool, error) {
	const query = `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_name = ?
		  AND table_type = 'BASE TABLE'`

	var count int
	if err := in.db.QueryRowContext(ctx, query, in.schema, table).Scan(&count); err != nil {
		return false, &IntrospectionError{Instance: in.instance, Table: table, Op: "check existence", Err: err}
	}
	return count > 0, nil
}

// TableDefinition captures the complete structure of one table: columns in
// true physical ordinal order, primary key, secondary indexes, and foreign
// keys. The ordinal column order is load-bearing for the structural differ.
func (in *Introspector) TableDefinition(ctx context.Context, table string) (*TableDefinition, error) {
	def := &TableDefinition{
		Name:        table,
		Indexes:     make(map[string]IndexDefinition),
		ForeignKeys: make(map[string]ForeignKeyDefinition),
	}

	if err := in.readColumns(ctx, def); err != nil {
		return nil, err
	}
	if err := in.readPrimaryKey(ctx, def); err != nil {
		return nil, err
	}
	if err := in.readIndexes(ctx, def); err != nil {
		return nil, err
	}
	if err := in.readForeignKeys(ctx, def); err != nil {
		return nil, err
	}

	return def, nil
}

// Snapshot captures definitions for every table in the schema, minus the
// excluded set. Returns the definitions keyed by table name plus the sorted
// name list for deterministic iteration.
func (in *Introspector) Snapshot(ctx context.Context, exclude map[string]bool) (map[string]*TableDefinition, []string, error) {
	tables, err := in.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}

	defs := make(map[string]*TableDefinition)
	var names []string
	for _, table := range tables {
		if exclude[table] {
			in.logger.Debugw("Skipping excluded table", "instance", in.instance, "table", table)
			continue
		}
		def, err := in.TableDefinition(ctx, table)
		if err != nil {
			return nil, nil, err
		}
		defs[table] = def
		names = append(names, table)
	}
	sort.Strings(names)

	return defs, names, nil
}

// CreateStatement returns the engine's own CREATE TABLE statement for the
// table, used for replayable structure dumps in backups.
func (in *Introspector) CreateStatement(ctx context.Context, table string) (string, error) {
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return "", &IntrospectionError{Instance: in.instance, Table: table, Op: "quote identifier", Err: err}
	}

	var name, stmt string
	if err := in.db.QueryRowContext(ctx, "SHOW CREATE TABLE "+quoted).Scan(&name, &stmt); err != nil {
		return "", &IntrospectionError{Instance: in.instance, Table: table, Op: "show create table", Err: err}
	}
	return stmt, nil
}

// CountRows returns the current row count of the table.
func (in *Introspector) CountRows(ctx context.Context, table string) (int64, error) {
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return 0, &IntrospectionError{Instance: in.instance, Table: table, Op: "quote identifier", Err: err}
	}

	var count int64
	if err := in.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&count); err != nil {
		return 0, &IntrospectionError{Instance: in.instance, Table: table, Op: "count rows", Err: err}
	}
	return count, nil
}

// readColumns populates def.Columns in ordinal position order.
func (in *Introspector) readColumns(ctx context.Context, def *TableDefinition) error {
	const query = `
		SELECT column_name, ordinal_position, column_type, is_nullable, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`

	rows, err := in.db.QueryContext(ctx, query, in.schema, def.Name)
	if err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read columns", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, columnType, isNullable, extra string
			ordinal                             int
			defaultVal                          sql.NullString
		)
		if err := rows.Scan(&name, &ordinal, &columnType, &isNullable, &defaultVal, &extra); err != nil {
			return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "scan column", Err: err}
		}

		col := ColumnDefinition{
			Name:            name,
			OrdinalPosition: ordinal,
			ColumnType:      columnType,
			Nullable:        isNullable == "YES",
			AutoIncrement:   strings.Contains(strings.ToLower(extra), "auto_increment"),
		}
		if defaultVal.Valid {
			literal, isNow := normalizeDefault(defaultVal.String)
			if isNow {
				col.DefaultIsNow = true
			} else {
				col.Default = &literal
			}
		}
		// auto_increment is modeled as its own flag; the rest of extra
		// (e.g. "on update current_timestamp()") travels verbatim.
		if !col.AutoIncrement {
			col.Extra = strings.TrimSpace(extra)
		}

		def.Columns = append(def.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read columns", Err: err}
	}

	return nil
}

// readPrimaryKey populates def.PrimaryKey in key ordinal order.
func (in *Introspector) readPrimaryKey(ctx context.Context, def *TableDefinition) error {
	const query = `
		SELECT column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND constraint_name = 'PRIMARY'
		ORDER BY ordinal_position`

	rows, err := in.db.QueryContext(ctx, query, in.schema, def.Name)
	if err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read primary key", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "scan primary key", Err: err}
		}
		def.PrimaryKey = append(def.PrimaryKey, column)
	}
	if err := rows.Err(); err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read primary key", Err: err}
	}

	return nil
}

// readIndexes populates def.Indexes from information_schema.statistics,
// excluding the PRIMARY index (the primary key travels with column DDL).
// Indexes backing foreign key constraints are included; both sides carry
// them, so they never diff on their own.
func (in *Introspector) readIndexes(ctx context.Context, def *TableDefinition) error {
	const query = `
		SELECT index_name, column_name, non_unique
		FROM information_schema.statistics
		WHERE table_schema = ?
		  AND table_name = ?
		  AND index_name != 'PRIMARY'
		ORDER BY index_name, seq_in_index`

	rows, err := in.db.QueryContext(ctx, query, in.schema, def.Name)
	if err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read indexes", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			indexName, columnName string
			nonUnique             int
		)
		if err := rows.Scan(&indexName, &columnName, &nonUnique); err != nil {
			return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "scan index", Err: err}
		}

		idx, exists := def.Indexes[indexName]
		if !exists {
			idx = IndexDefinition{Name: indexName, Unique: nonUnique == 0}
		}
		idx.Columns = append(idx.Columns, columnName)
		def.Indexes[indexName] = idx
	}
	if err := rows.Err(); err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read indexes", Err: err}
	}

	return nil
}

// readForeignKeys populates def.ForeignKeys with referenced tables, columns,
// and delete/update rules.
func (in *Introspector) readForeignKeys(ctx context.Context, def *TableDefinition) error {
	const query = `
		SELECT kcu.constraint_name, kcu.column_name, kcu.referenced_table_name,
		       kcu.referenced_column_name, rc.update_rule, rc.delete_rule
		FROM information_schema.key_column_usage kcu
		JOIN information_schema.referential_constraints rc
			ON kcu.constraint_name = rc.constraint_name
			AND kcu.table_schema = rc.constraint_schema
		WHERE kcu.table_schema = ?
		  AND kcu.table_name = ?
		  AND kcu.referenced_table_name IS NOT NULL
		ORDER BY kcu.constraint_name, kcu.ordinal_position`

	rows, err := in.db.QueryContext(ctx, query, in.schema, def.Name)
	if err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read foreign keys", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var constraintName, columnName, refTable, refColumn, updateRule, deleteRule string
		if err := rows.Scan(&constraintName, &columnName, &refTable, &refColumn, &updateRule, &deleteRule); err != nil {
			return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "scan foreign key", Err: err}
		}

		fk, exists := def.ForeignKeys[constraintName]
		if !exists {
			fk = ForeignKeyDefinition{
				Name:            constraintName,
				Table:           def.Name,
				ReferencedTable: refTable,
				OnUpdate:        updateRule,
				OnDelete:        deleteRule,
			}
		}
		fk.Columns = append(fk.Columns, columnName)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
		def.ForeignKeys[constraintName] = fk
	}
	if err := rows.Err(); err != nil {
		return &IntrospectionError{Instance: in.instance, Table: def.Name, Op: "read foreign keys", Err: err}
	}

	return nil
}
