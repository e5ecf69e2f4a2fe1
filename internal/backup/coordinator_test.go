package backup

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/schema"
)

func newCoordinator(t *testing.T, dir string) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.BackupConfig{
		Enabled:        true,
		Dir:            dir,
		RetentionCount: 10,
		RetentionDays:  30,
	}
	introspector := schema.NewIntrospector(db, "proddb", "production", nil)
	c := NewCoordinator(db, introspector, cfg, nil)
	c.now = func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	return c, mock
}

func expectTableExists(mock sqlmock.Sqlmock, table string, exists bool) {
	count := 0
	if exists {
		count = 1
	}
	mock.ExpectQuery("FROM information_schema.tables").
		WithArgs("proddb", table).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(count))
}

func expectDump(mock sqlmock.Sqlmock, table, createStmt string, rows *sqlmock.Rows) {
	mock.ExpectQuery("SHOW CREATE TABLE").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).AddRow(table, createStmt))
	mock.ExpectQuery("SELECT \\* FROM").WillReturnRows(rows)
}

func TestCreate_WritesStructureDataAndMetadata(t *testing.T) {
	dir := t.TempDir()
	c, mock := newCoordinator(t, dir)

	expectTableExists(mock, "users", true)
	expectDump(mock, "users", "CREATE TABLE `users` (\n  `id` int(11) NOT NULL\n)",
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alice")).
			AddRow(int64(2), nil))

	record, err := c.Create(context.Background(), "production", []string{"users"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "production_20260315_103000", record.Name)
	assert.Equal(t, "production", record.Environment)
	require.Len(t, record.Tables, 1)
	assert.Equal(t, int64(2), record.Tables[0].Rows)

	structure, err := os.ReadFile(filepath.Join(record.Dir, "users_structure.sql"))
	require.NoError(t, err)
	assert.Contains(t, string(structure), "DROP TABLE IF EXISTS `users`;")
	assert.Contains(t, string(structure), "CREATE TABLE `users`")

	data, err := os.ReadFile(filepath.Join(record.Dir, "users_data.sql"))
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "SET FOREIGN_KEY_CHECKS = 0;")
	assert.Contains(t, content, "TRUNCATE TABLE `users`;")
	assert.Contains(t, content, "INSERT INTO `users` (`id`, `name`) VALUES (1, 'alice');")
	assert.Contains(t, content, "INSERT INTO `users` (`id`, `name`) VALUES (2, NULL);")
	assert.Contains(t, content, "SET FOREIGN_KEY_CHECKS = 1;")

	meta, err := os.ReadFile(filepath.Join(record.Dir, "metadata.json"))
	require.NoError(t, err)
	var loaded Record
	require.NoError(t, json.Unmarshal(meta, &loaded))
	assert.Equal(t, record.Name, loaded.Name)
	require.Len(t, loaded.Tables, 1)
	assert.Equal(t, "users_data.sql", loaded.Tables[0].DataFile)
}

func TestCreate_SkipsTablesAbsentFromTarget(t *testing.T) {
	c, mock := newCoordinator(t, t.TempDir())

	expectTableExists(mock, "new_table", false)

	record, err := c.Create(context.Background(), "production", []string{"new_table"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Empty(t, record.Tables)
	_, err = os.Stat(filepath.Join(record.Dir, "metadata.json"))
	assert.NoError(t, err, "metadata marker still written for an empty backup")
}

func TestCreate_FailureRemovesPartialDirectory(t *testing.T) {
	dir := t.TempDir()
	c, mock := newCoordinator(t, dir)

	expectTableExists(mock, "users", true)
	mock.ExpectQuery("SHOW CREATE TABLE").WillReturnError(errors.New("connection lost"))

	_, err := c.Create(context.Background(), "production", []string{"users"})
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "structure", failure.Stage)
	assert.Equal(t, "users", failure.Table)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "partial backup directory must be removed")
}

func TestCreate_TablesProcessedInSortedOrder(t *testing.T) {
	c, mock := newCoordinator(t, t.TempDir())

	// Expectations are ordered; passing tables unsorted must still hit
	// "accounts" first.
	expectTableExists(mock, "accounts", true)
	expectDump(mock, "accounts", "CREATE TABLE `accounts` (\n  `id` int(11)\n)",
		sqlmock.NewRows([]string{"id"}))
	expectTableExists(mock, "zones", true)
	expectDump(mock, "zones", "CREATE TABLE `zones` (\n  `id` int(11)\n)",
		sqlmock.NewRows([]string{"id"}))

	record, err := c.Create(context.Background(), "production", []string{"zones", "accounts"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, record.Tables, 2)
	assert.Equal(t, "accounts", record.Tables[0].Table)
	assert.Equal(t, "zones", record.Tables[1].Table)
}

func writeBackupDir(t *testing.T, base, name string, createdAt time.Time) {
	t.Helper()
	dir := filepath.Join(base, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	record := Record{Name: name, Environment: "production", CreatedAt: createdAt}
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644))
}

func TestList_NewestFirstAndSkipsIncomplete(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCoordinator(t, dir)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	writeBackupDir(t, dir, "production_20260301_120000", base)
	writeBackupDir(t, dir, "production_20260310_120000", base.AddDate(0, 0, 9))

	// Partial directory without metadata.json: aborted run leftover.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "production_20260312_120000"), 0o755))

	records, err := c.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "production_20260310_120000", records[0].Name)
	assert.Equal(t, "production_20260301_120000", records[1].Name)
}

func TestList_MissingDirectoryIsEmpty(t *testing.T) {
	c, _ := newCoordinator(t, filepath.Join(t.TempDir(), "does-not-exist"))

	records, err := c.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPrune_ByCount(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCoordinator(t, dir)
	c.cfg.RetentionCount = 2
	c.cfg.RetentionDays = 0

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	writeBackupDir(t, dir, "production_20260310_120000", base)
	writeBackupDir(t, dir, "production_20260311_120000", base.AddDate(0, 0, 1))
	writeBackupDir(t, dir, "production_20260312_120000", base.AddDate(0, 0, 2))

	pruned, err := c.Prune("")
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	records, err := c.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "production_20260312_120000", records[0].Name)
	assert.Equal(t, "production_20260311_120000", records[1].Name)
}

func TestPrune_ByAge(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCoordinator(t, dir)
	c.cfg.RetentionCount = 0
	c.cfg.RetentionDays = 7
	// now() is fixed to 2026-03-15 by newCoordinator.

	writeBackupDir(t, dir, "production_20260201_120000", time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	writeBackupDir(t, dir, "production_20260314_120000", time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))

	pruned, err := c.Prune("")
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	records, err := c.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "production_20260314_120000", records[0].Name)
}

func TestPrune_NeverRemovesKeptBackup(t *testing.T) {
	dir := t.TempDir()
	c, _ := newCoordinator(t, dir)
	c.cfg.RetentionCount = 0
	c.cfg.RetentionDays = 1

	// Old enough to prune, but named as the current run's backup.
	writeBackupDir(t, dir, "production_20260101_120000", time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	pruned, err := c.Prune("production_20260101_120000")
	require.NoError(t, err)
	assert.Equal(t, 0, pruned)

	records, err := c.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFormatSQLValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{name: "Nil", value: nil, want: "NULL"},
		{name: "Bytes", value: []byte("alice"), want: "'alice'"},
		{name: "String with quote", value: "o'brien", want: "'o''brien'"},
		{name: "Backslash", value: `a\b`, want: `'a\\b'`},
		{name: "Newline", value: "a\nb", want: `'a\nb'`},
		{name: "Int", value: int64(-5), want: "-5"},
		{name: "Uint", value: uint64(7), want: "7"},
		{name: "Float", value: float64(1.25), want: "1.25"},
		{name: "Bool true", value: true, want: "1"},
		{name: "Time", value: time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC), want: "'2026-03-15 10:30:00'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSQLValue(tt.value))
		})
	}
}
