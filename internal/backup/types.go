// Package backup captures the target's tables to restorable SQL dumps before
// a promotion mutates them.
package backup

import (
	"fmt"
	"time"
)

// TableBackup describes one table captured into a backup.
type TableBackup struct {
	Table         string `json:"table"`
	Rows          int64  `json:"rows"`
	StructureFile string `json:"structure_file"`
	DataFile      string `json:"data_file"`
}

// Record describes one completed backup. It is serialized to metadata.json
// inside the backup directory; the presence of that file marks the backup as
// complete.
type Record struct {
	Name        string        `json:"name"`
	Environment string        `json:"environment"`
	CreatedAt   time.Time     `json:"created_at"`
	Dir         string        `json:"-"`
	Tables      []TableBackup `json:"tables"`
}

// Failure wraps an error that aborted backup creation. A failed backup
// always aborts the promotion before any mutation.
type Failure struct {
	Stage string // "prepare", "structure", "data", "metadata"
	Table string // empty for non-table stages
	Err   error
}

func (f *Failure) Error() string {
	if f.Table != "" {
		return fmt.Sprintf("backup failed at %s stage for table %q: %v", f.Stage, f.Table, f.Err)
	}
	return fmt.Sprintf("backup failed at %s stage: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
