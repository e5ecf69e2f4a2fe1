package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/dbpromote/internal/executor"
	"github.com/dbsmedya/dbpromote/internal/planner"
	"github.com/dbsmedya/dbpromote/internal/promote"
)

func TestPromoteCommandStructure(t *testing.T) {
	assert.NotNil(t, promoteCmd)
	assert.Equal(t, "promote", promoteCmd.Use)
	assert.NotEmpty(t, promoteCmd.Short)
	assert.NotEmpty(t, promoteCmd.Long)
	assert.NotNil(t, promoteCmd.RunE)
}

func TestPromoteIsAddedToRoot(t *testing.T) {
	found := false
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "promote" {
			found = true
			break
		}
	}
	assert.True(t, found, "promote command should be added to root command")
}

func TestPrintRunSummarySuccess(t *testing.T) {
	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	printRunSummary(&promote.RunResult{
		RunName:    "promote_20260315_103000",
		PlanSteps:  2,
		Duration:   1500 * time.Millisecond,
		BackupName: "production_20260315_103000",
		Success:    true,
		Report: &executor.Report{
			Success:  true,
			HaltedAt: -1,
			Results: []executor.StepResult{
				{
					Index:  0,
					Step:   planner.MigrationStep{Kind: planner.StepCreateTable, Table: "users"},
					Status: executor.StatusCommitted,
				},
				{
					Index:      1,
					Step:       planner.MigrationStep{Kind: planner.StepSyncData, Table: "settings"},
					Status:     executor.StatusCommitted,
					RowsSynced: 42,
				},
			},
		},
	})

	output := buf.String()
	assert.Contains(t, output, "Promotion Complete")
	assert.Contains(t, output, "Run:      promote_20260315_103000")
	assert.Contains(t, output, "Backup:   production_20260315_103000")
	assert.Contains(t, output, "Duration: 1.5s")
	assert.Contains(t, output, "[1] ✔ create_table users")
	assert.Contains(t, output, "[2] ✔ sync_data settings (42 rows)")
	assert.NotContains(t, output, "Halted:")
}

func TestPrintRunSummaryFailure(t *testing.T) {
	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	stepErr := errors.New("table is locked")
	printRunSummary(&promote.RunResult{
		RunName:   "promote_20260315_110000",
		PlanSteps: 2,
		Success:   false,
		Report: &executor.Report{
			Success:  false,
			HaltedAt: 1,
			Results: []executor.StepResult{
				{
					Index:  0,
					Step:   planner.MigrationStep{Kind: planner.StepCreateTable, Table: "users"},
					Status: executor.StatusCommitted,
				},
				{
					Index:  1,
					Step:   planner.MigrationStep{Kind: planner.StepAlterStructure, Table: "orders"},
					Status: executor.StatusFailed,
					Err:    stepErr,
				},
			},
		},
	})

	output := buf.String()
	assert.Contains(t, output, "Promotion Failed")
	assert.Contains(t, output, "[2] ✘ alter_structure orders")
	assert.Contains(t, output, "Halted: table is locked")
}

func TestPrintRunSummaryNil(t *testing.T) {
	var buf bytes.Buffer
	setOutputWriter(&buf)
	defer resetOutputWriter()

	printRunSummary(nil)

	assert.Empty(t, buf.String())
}

func TestStatusMarkerPending(t *testing.T) {
	assert.Equal(t, "·", statusMarker(executor.StatusPending))
}
