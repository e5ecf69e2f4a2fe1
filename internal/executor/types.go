// Package executor applies a migration plan to the target instance, one
// transactional step at a time.
package executor

import (
	"fmt"
	"time"

	"github.com/dbsmedya/dbpromote/internal/planner"
)

// StepStatus is the lifecycle state of one plan step.
type StepStatus string

const (
	// StatusPending means the step has not started. Steps after a failure
	// stay pending.
	StatusPending StepStatus = "pending"
	// StatusExecuting means the step's transaction is in flight.
	StatusExecuting StepStatus = "executing"
	// StatusCommitted means the step's transaction committed.
	StatusCommitted StepStatus = "committed"
	// StatusFailed means the step errored and its transaction rolled back.
	StatusFailed StepStatus = "failed"
)

// StepResult records the outcome of one plan step.
type StepResult struct {
	Index      int
	Step       planner.MigrationStep
	Status     StepStatus
	Err        error
	Duration   time.Duration
	RowsSynced int64 // set for data sync steps
}

// Report is the full outcome of one plan execution. Steps appear in plan
// order; after the first failure, the remaining steps are pending.
type Report struct {
	Results  []StepResult
	Success  bool
	HaltedAt int // index of the failed step; -1 when none failed
}

// StepError wraps the failure of a single migration step.
type StepError struct {
	Index int
	Table string
	Kind  planner.StepKind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s) failed: %v", e.Index, e.Kind, e.Table, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// SyncMismatchError reports a row count divergence after a data sync. The
// sync transaction is rolled back when this is returned.
type SyncMismatchError struct {
	Table      string
	SourceRows int64
	TargetRows int64
}

func (e *SyncMismatchError) Error() string {
	return fmt.Sprintf("data sync verification failed for table %q: source has %d rows, target has %d",
		e.Table, e.SourceRows, e.TargetRows)
}
