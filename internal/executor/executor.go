package executor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/planner"
	"github.com/dbsmedya/dbpromote/internal/sqlutil"
)

// Executor runs a migration plan against the target. Each step gets its own
// transaction; a failed step rolls back and halts the run, leaving every
// earlier step committed and every later step untouched.
type Executor struct {
	source *sql.DB
	target *sql.DB
	cfg    config.ProcessingConfig
	logger *logger.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(source, target *sql.DB, cfg config.ProcessingConfig, log *logger.Logger) (*Executor, error) {
	if source == nil {
		return nil, fmt.Errorf("source database is nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target database is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Executor{
		source: source,
		target: target,
		cfg:    cfg,
		logger: log,
	}, nil
}

// Execute runs the plan in order. The returned report always carries one
// result per plan step. The error is the first step failure (or the context
// error when cancelled between steps); the report is returned alongside it.
func (e *Executor) Execute(ctx context.Context, plan *planner.MigrationPlan) (*Report, error) {
	report := &Report{HaltedAt: -1}
	for i, step := range plan.Steps {
		report.Results = append(report.Results, StepResult{
			Index:  i,
			Step:   step,
			Status: StatusPending,
		})
	}

	for i := range report.Results {
		// Cancellation takes effect between steps; a step in flight
		// finishes or fails on its own.
		if err := ctx.Err(); err != nil {
			report.HaltedAt = i
			return report, err
		}

		result := &report.Results[i]
		step := result.Step
		log := e.logger.WithStep(i, string(step.Kind)).WithTable(step.Table)

		result.Status = StatusExecuting
		log.Infow("Executing step")
		start := time.Now()

		rows, err := e.runStep(ctx, step)
		result.Duration = time.Since(start)
		result.RowsSynced = rows

		if err != nil {
			result.Status = StatusFailed
			result.Err = err
			report.HaltedAt = i
			log.Errorw("Step failed; halting run", "error", err)
			return report, &StepError{Index: i, Table: step.Table, Kind: step.Kind, Err: err}
		}

		result.Status = StatusCommitted
		log.Infow("Step committed", "duration", result.Duration, "rows_synced", rows)
	}

	report.Success = true
	return report, nil
}

// runStep executes one step inside its own target transaction. Returns the
// number of rows written for data sync steps.
func (e *Executor) runStep(ctx context.Context, step planner.MigrationStep) (rowsSynced int64, err error) {
	tx, err := e.target.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				e.logger.Errorw("Failed to rollback transaction", "table", step.Table, "error", rbErr)
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return 0, fmt.Errorf("failed to disable foreign key checks: %w", err)
	}

	switch step.Kind {
	case planner.StepSyncData:
		rowsSynced, err = e.syncData(ctx, tx, step.Table)
		if err != nil {
			return rowsSynced, err
		}
	default:
		for _, stmt := range step.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return 0, fmt.Errorf("statement %q failed: %w", stmt, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
		return rowsSynced, fmt.Errorf("failed to restore foreign key checks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return rowsSynced, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	return rowsSynced, nil
}

// syncData replaces the target table's rows with the source's inside the
// step transaction: truncate, batched multi-row inserts, then a row count
// comparison. A count mismatch fails the step before commit.
func (e *Executor) syncData(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	quoted := sqlutil.QuoteIdentifier(table)

	if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+quoted); err != nil {
		return 0, fmt.Errorf("failed to truncate: %w", err)
	}

	rows, err := e.source.QueryContext(ctx, "SELECT * FROM "+quoted)
	if err != nil {
		return 0, fmt.Errorf("failed to read source rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, fmt.Errorf("failed to read source columns: %w", err)
	}

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	var (
		written int64
		batch   [][]interface{}
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := e.insertBatch(ctx, tx, quoted, columns, batch); err != nil {
			return err
		}
		written += int64(len(batch))
		batch = batch[:0]

		if e.cfg.SleepSeconds > 0 {
			pause := time.Duration(e.cfg.SleepSeconds * float64(time.Second))
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return written, fmt.Errorf("failed to scan source row: %w", err)
		}

		batch = append(batch, values)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return written, fmt.Errorf("error iterating source rows: %w", err)
	}
	if err := flush(); err != nil {
		return written, err
	}

	sourceCount, targetCount, err := e.verifyCounts(ctx, tx, quoted)
	if err != nil {
		return written, err
	}
	if sourceCount != targetCount {
		return written, &SyncMismatchError{
			Table:      table,
			SourceRows: sourceCount,
			TargetRows: targetCount,
		}
	}

	return written, nil
}

// insertBatch writes one multi-row INSERT for the accumulated batch.
func (e *Executor) insertBatch(ctx context.Context, tx *sql.Tx, quotedTable string, columns []string, batch [][]interface{}) error {
	tuple := "(" + sqlutil.Placeholders(len(columns)) + ")"
	tuples := tuple
	for i := 1; i < len(batch); i++ {
		tuples += ", " + tuple
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quotedTable, sqlutil.ColumnList(columns), tuples)

	args := make([]interface{}, 0, len(batch)*len(columns))
	for _, row := range batch {
		args = append(args, row...)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("batch insert failed: %w", err)
	}
	return nil
}

// verifyCounts compares row counts, reading the target through the sync
// transaction so the uncommitted rows are visible.
func (e *Executor) verifyCounts(ctx context.Context, tx *sql.Tx, quotedTable string) (sourceCount, targetCount int64, err error) {
	if err := e.source.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quotedTable).Scan(&sourceCount); err != nil {
		return 0, 0, fmt.Errorf("failed to count source rows: %w", err)
	}
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quotedTable).Scan(&targetCount); err != nil {
		return 0, 0, fmt.Errorf("failed to count target rows: %w", err)
	}
	return sourceCount, targetCount, nil
}
