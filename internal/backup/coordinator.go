package backup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/schema"
	"github.com/dbsmedya/dbpromote/internal/sqlutil"
)

const metadataFile = "metadata.json"

// Coordinator creates, lists and prunes backups of the target instance.
type Coordinator struct {
	db           *sql.DB
	introspector *schema.Introspector
	cfg          config.BackupConfig
	logger       *logger.Logger
	now          func() time.Time
}

// NewCoordinator creates a backup coordinator for the target database.
func NewCoordinator(db *sql.DB, introspector *schema.Introspector, cfg config.BackupConfig, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Coordinator{
		db:           db,
		introspector: introspector,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
	}
}

// Create captures the named tables into a new backup directory. Tables that
// do not exist on the target are skipped; they have nothing to restore to.
// Any failure removes the partial directory and returns a *Failure, so the
// caller never proceeds on an incomplete backup.
//
// The directory layout is <dir>/<env>_<timestamp>/ holding one
// <table>_structure.sql and one <table>_data.sql per table, plus
// metadata.json written last as the completeness marker.
func (c *Coordinator) Create(ctx context.Context, environment string, tables []string) (*Record, error) {
	createdAt := c.now()
	name := fmt.Sprintf("%s_%s", environment, createdAt.Format("20060102_150405"))
	dir := filepath.Join(c.cfg.Dir, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Failure{Stage: "prepare", Err: err}
	}

	record := &Record{
		Name:        name,
		Environment: environment,
		CreatedAt:   createdAt,
		Dir:         dir,
	}

	sorted := append([]string(nil), tables...)
	sort.Strings(sorted)

	for _, table := range sorted {
		exists, err := c.introspector.TableExists(ctx, table)
		if err != nil {
			return nil, c.abort(dir, &Failure{Stage: "prepare", Table: table, Err: err})
		}
		if !exists {
			c.logger.Debugw("Table absent from target; nothing to back up", "table", table)
			continue
		}

		tb, err := c.backupTable(ctx, dir, table)
		if err != nil {
			return nil, c.abort(dir, err)
		}
		record.Tables = append(record.Tables, *tb)
	}

	if err := c.writeMetadata(dir, record); err != nil {
		return nil, c.abort(dir, &Failure{Stage: "metadata", Err: err})
	}

	c.logger.Infow("Backup created",
		"name", name,
		"tables", len(record.Tables),
		"dir", dir,
	)
	return record, nil
}

func (c *Coordinator) abort(dir string, err error) error {
	if rmErr := os.RemoveAll(dir); rmErr != nil {
		c.logger.Errorw("Failed to remove partial backup directory", "dir", dir, "error", rmErr)
	}
	return err
}

func (c *Coordinator) backupTable(ctx context.Context, dir, table string) (*TableBackup, error) {
	log := c.logger.WithTable(table)

	structureFile := table + "_structure.sql"
	if err := c.dumpStructure(ctx, table, filepath.Join(dir, structureFile)); err != nil {
		return nil, &Failure{Stage: "structure", Table: table, Err: err}
	}

	dataFile := table + "_data.sql"
	rows, err := c.dumpData(ctx, table, filepath.Join(dir, dataFile))
	if err != nil {
		return nil, &Failure{Stage: "data", Table: table, Err: err}
	}

	log.Debugw("Table backed up", "rows", rows)
	return &TableBackup{
		Table:         table,
		Rows:          rows,
		StructureFile: structureFile,
		DataFile:      dataFile,
	}, nil
}

// dumpStructure writes a restore script that drops and recreates the table.
func (c *Coordinator) dumpStructure(ctx context.Context, table, path string) error {
	createStmt, err := c.introspector.CreateStatement(ctx, table)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DROP TABLE IF EXISTS %s;\n", sqlutil.QuoteIdentifier(table))
	b.WriteString(createStmt)
	b.WriteString(";\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// dumpData writes a restore script that replaces the table's rows. The
// script wraps its statements in a FOREIGN_KEY_CHECKS toggle so a restore
// does not trip over constraint order.
func (c *Coordinator) dumpData(ctx context.Context, table, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	quoted := sqlutil.QuoteIdentifier(table)
	if _, err := fmt.Fprintf(f, "SET FOREIGN_KEY_CHECKS = 0;\nTRUNCATE TABLE %s;\n", quoted); err != nil {
		return 0, err
	}

	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoted))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	columnList := sqlutil.ColumnList(columns)

	var count int64
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return count, err
		}

		literals := make([]string, len(values))
		for i, v := range values {
			literals[i] = formatSQLValue(v)
		}
		if _, err := fmt.Fprintf(f, "INSERT INTO %s (%s) VALUES (%s);\n",
			quoted, columnList, strings.Join(literals, ", ")); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	if _, err := fmt.Fprint(f, "SET FOREIGN_KEY_CHECKS = 1;\n"); err != nil {
		return count, err
	}
	return count, nil
}

func (c *Coordinator) writeMetadata(dir string, record *Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, metadataFile), append(data, '\n'), 0o644)
}

// List returns the completed backups under the configured directory, newest
// first. Directories without metadata.json are incomplete leftovers and are
// not listed.
func (c *Coordinator) List() ([]Record, error) {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(c.cfg.Dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, metadataFile))
		if err != nil {
			if os.IsNotExist(err) {
				c.logger.Warnw("Backup directory has no metadata; skipping", "dir", dir)
				continue
			}
			return nil, err
		}

		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			c.logger.Warnw("Backup metadata is unreadable; skipping", "dir", dir, "error", err)
			continue
		}
		record.Dir = dir
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// Prune removes backups beyond the retention count or older than the
// retention age. The named backup survives regardless, so the backup taken
// for the current run can never prune itself.
func (c *Coordinator) Prune(keep string) (int, error) {
	records, err := c.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Time{}
	if c.cfg.RetentionDays > 0 {
		cutoff = c.now().AddDate(0, 0, -c.cfg.RetentionDays)
	}

	pruned := 0
	for i, record := range records {
		if record.Name == keep {
			continue
		}

		overCount := c.cfg.RetentionCount > 0 && i >= c.cfg.RetentionCount
		overAge := !cutoff.IsZero() && record.CreatedAt.Before(cutoff)
		if !overCount && !overAge {
			continue
		}

		if err := os.RemoveAll(record.Dir); err != nil {
			return pruned, err
		}
		c.logger.Infow("Backup pruned",
			"name", record.Name,
			"created_at", record.CreatedAt,
			"over_count", overCount,
			"over_age", overAge,
		)
		pruned++
	}
	return pruned, nil
}
