package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/dbpromote/internal/schema"
)

func tableDef(name string, columns ...string) *schema.TableDefinition {
	def := &schema.TableDefinition{
		Name:        name,
		Indexes:     make(map[string]schema.IndexDefinition),
		ForeignKeys: make(map[string]schema.ForeignKeyDefinition),
	}
	for i, col := range columns {
		def.Columns = append(def.Columns, schema.ColumnDefinition{
			Name:            col,
			OrdinalPosition: i + 1,
			ColumnType:      "varchar(255)",
			Nullable:        true,
		})
	}
	return def
}

func TestDiff_TargetAbsent(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("orders", "id", "total")

	td := d.Diff(source, nil)

	assert.True(t, td.CreateOnly)
	assert.False(t, td.RequiresRecreate)
	assert.Empty(t, td.ColumnOps)
	assert.Empty(t, td.IndexOps)
	assert.Empty(t, td.ForeignKeyOps)
	assert.False(t, td.Empty(), "a create is still work")
}

func TestDiff_IdenticalTables(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name", "email")
	target := tableDef("users", "id", "name", "email")

	td := d.Diff(source, target)

	assert.True(t, td.Empty())
}

func TestDiff_MissingColumnAddedAfterPredecessor(t *testing.T) {
	// Scenario: both have users(id, name, email) but target lacks email.
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name", "email")
	target := tableDef("users", "id", "name")

	td := d.Diff(source, target)

	require.Len(t, td.ColumnOps, 1)
	op := td.ColumnOps[0]
	assert.Equal(t, ColumnAddAfter, op.Kind)
	assert.Equal(t, "email", op.Column)
	assert.Equal(t, "name", op.After)
	require.NotNil(t, op.Definition)
	assert.False(t, td.RequiresRecreate, "pure addition keeps relative order intact")
}

func TestDiff_MissingFirstColumn(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name")
	target := tableDef("users", "name")

	td := d.Diff(source, target)

	require.Len(t, td.ColumnOps, 1)
	assert.Equal(t, ColumnAddAfter, td.ColumnOps[0].Kind)
	assert.Equal(t, "id", td.ColumnOps[0].Column)
	assert.Equal(t, "", td.ColumnOps[0].After, "empty After means the column goes first")
}

func TestDiff_ExtraTargetColumnDropped(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name")
	target := tableDef("users", "id", "name", "legacy_flag")

	td := d.Diff(source, target)

	require.Len(t, td.ColumnOps, 1)
	assert.Equal(t, ColumnDrop, td.ColumnOps[0].Kind)
	assert.Equal(t, "legacy_flag", td.ColumnOps[0].Column)
	assert.Nil(t, td.ColumnOps[0].Definition)
	assert.False(t, td.RequiresRecreate)
}

func TestDiff_ModifiedColumns(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name")
	target := tableDef("users", "id", "name")

	source.Columns[0].ColumnType = "bigint(20)"
	target.Columns[0].ColumnType = "int(11)"
	source.Columns[1].Nullable = false
	def := "guest"
	source.Columns[1].Default = &def

	td := d.Diff(source, target)

	require.Len(t, td.ColumnOps, 3)
	assert.Equal(t, ColumnModifyType, td.ColumnOps[0].Kind)
	assert.Equal(t, "id", td.ColumnOps[0].Column)
	assert.Equal(t, ColumnModifyNull, td.ColumnOps[1].Kind)
	assert.Equal(t, ColumnModifyDefault, td.ColumnOps[2].Kind)
	assert.Equal(t, "name", td.ColumnOps[2].Column)
}

func TestDiff_CurrentTimestampSpellingsCompareEqual(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("events", "id", "created_at")
	target := tableDef("events", "id", "created_at")

	// Both captured sides normalized their engine's spelling to the sentinel.
	source.Columns[1].DefaultIsNow = true
	target.Columns[1].DefaultIsNow = true

	td := d.Diff(source, target)
	assert.True(t, td.Empty())
}

func TestDiff_ColumnOrderChangeRequiresRecreate(t *testing.T) {
	// Scenario: target products(id, name, price), source products(id, price, name).
	d := NewDiffer(nil)
	source := tableDef("products", "id", "price", "name")
	target := tableDef("products", "id", "name", "price")

	td := d.Diff(source, target)

	assert.True(t, td.RequiresRecreate)
	assert.Empty(t, td.ColumnOps, "no column differs, only the order")
}

func TestDiff_OrderPermutations(t *testing.T) {
	d := NewDiffer(nil)

	tests := []struct {
		name         string
		source       []string
		target       []string
		wantRecreate bool
	}{
		{name: "Same order", source: []string{"a", "b", "c"}, target: []string{"a", "b", "c"}, wantRecreate: false},
		{name: "Swapped pair", source: []string{"a", "b", "c"}, target: []string{"b", "a", "c"}, wantRecreate: true},
		{name: "Full reversal", source: []string{"a", "b", "c"}, target: []string{"c", "b", "a"}, wantRecreate: true},
		{name: "Addition preserves relative order", source: []string{"a", "x", "b", "c"}, target: []string{"a", "b", "c"}, wantRecreate: false},
		{name: "Removal preserves relative order", source: []string{"a", "c"}, target: []string{"a", "b", "c"}, wantRecreate: false},
		{name: "Addition plus reorder", source: []string{"a", "x", "c", "b"}, target: []string{"a", "b", "c"}, wantRecreate: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := d.Diff(tableDef("t", tt.source...), tableDef("t", tt.target...))
			assert.Equal(t, tt.wantRecreate, td.RequiresRecreate)
		})
	}
}

func TestDiff_IndexSetDifference(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "email")
	target := tableDef("users", "id", "email")

	source.Indexes["idx_email"] = schema.IndexDefinition{Name: "idx_email", Columns: []string{"email"}, Unique: true}
	target.Indexes["idx_legacy"] = schema.IndexDefinition{Name: "idx_legacy", Columns: []string{"id"}}

	td := d.Diff(source, target)

	require.Len(t, td.IndexOps, 2)
	assert.Equal(t, SetOpAdd, td.IndexOps[0].Kind)
	assert.Equal(t, "idx_email", td.IndexOps[0].Index.Name)
	assert.Equal(t, SetOpDrop, td.IndexOps[1].Kind)
	assert.Equal(t, "idx_legacy", td.IndexOps[1].Index.Name)
}

func TestDiff_IndexColumnOrderIsSignificant(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("events", "kind", "occurred_at")
	target := tableDef("events", "kind", "occurred_at")

	source.Indexes["idx_kt"] = schema.IndexDefinition{Name: "idx_kt", Columns: []string{"kind", "occurred_at"}}
	target.Indexes["idx_kt"] = schema.IndexDefinition{Name: "idx_kt", Columns: []string{"occurred_at", "kind"}}

	td := d.Diff(source, target)

	// Same name, different column order: drop then add
	require.Len(t, td.IndexOps, 2)
	assert.Equal(t, SetOpDrop, td.IndexOps[0].Kind)
	assert.Equal(t, SetOpAdd, td.IndexOps[1].Kind)
}

func TestDiff_ForeignKeySetDifference(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("orders", "id", "customer_id")
	target := tableDef("orders", "id", "customer_id")

	source.ForeignKeys["fk_customer"] = schema.ForeignKeyDefinition{
		Name: "fk_customer", Table: "orders",
		Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"},
	}
	target.ForeignKeys["fk_stale"] = schema.ForeignKeyDefinition{
		Name: "fk_stale", Table: "orders",
		Columns: []string{"customer_id"}, ReferencedTable: "legacy_customers", ReferencedColumns: []string{"id"},
	}

	td := d.Diff(source, target)

	require.Len(t, td.ForeignKeyOps, 2)
	assert.Equal(t, SetOpAdd, td.ForeignKeyOps[0].Kind)
	assert.Equal(t, "fk_customer", td.ForeignKeyOps[0].ForeignKey.Name)
	assert.Equal(t, SetOpDrop, td.ForeignKeyOps[1].Kind)
	assert.Equal(t, "fk_stale", td.ForeignKeyOps[1].ForeignKey.Name)
}

func TestDiff_ForeignKeyReshapedBecomesDropAdd(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("orders", "id", "customer_id")
	target := tableDef("orders", "id", "customer_id")

	source.ForeignKeys["fk_customer"] = schema.ForeignKeyDefinition{
		Name: "fk_customer", Table: "orders",
		Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"},
		OnDelete: "CASCADE",
	}
	target.ForeignKeys["fk_customer"] = schema.ForeignKeyDefinition{
		Name: "fk_customer", Table: "orders",
		Columns: []string{"customer_id"}, ReferencedTable: "customers", ReferencedColumns: []string{"id"},
		OnDelete: "SET NULL",
	}

	td := d.Diff(source, target)

	require.Len(t, td.ForeignKeyOps, 2)
	assert.Equal(t, SetOpDrop, td.ForeignKeyOps[0].Kind)
	assert.Equal(t, SetOpAdd, td.ForeignKeyOps[1].Kind)
}

func TestDiff_Deterministic(t *testing.T) {
	d := NewDiffer(nil)
	source := tableDef("users", "id", "name", "email")
	source.Indexes["idx_b"] = schema.IndexDefinition{Name: "idx_b", Columns: []string{"name"}}
	source.Indexes["idx_a"] = schema.IndexDefinition{Name: "idx_a", Columns: []string{"email"}}
	target := tableDef("users", "id")

	first := d.Diff(source, target)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.Diff(source, target))
	}
}

func TestDiffAll_OrderedBySourceName(t *testing.T) {
	d := NewDiffer(nil)
	sourceDefs := map[string]*schema.TableDefinition{
		"orders":    tableDef("orders", "id"),
		"customers": tableDef("customers", "id"),
	}
	targetDefs := map[string]*schema.TableDefinition{
		"customers": tableDef("customers", "id"),
	}

	diffs := d.DiffAll(sourceDefs, []string{"customers", "orders"}, targetDefs)

	assert.Equal(t, []string{"customers", "orders"}, diffs.Keys())

	customers, ok := diffs.Get("customers")
	require.True(t, ok)
	assert.True(t, customers.Empty())

	orders, ok := diffs.Get("orders")
	require.True(t, ok)
	assert.True(t, orders.CreateOnly)
}
