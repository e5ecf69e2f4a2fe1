// Package promote coordinates a full promotion run: capture both schemas,
// compute the plan, back up the target, and execute.
package promote

import (
	"context"
	"fmt"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/dbpromote/internal/backup"
	"github.com/dbsmedya/dbpromote/internal/config"
	"github.com/dbsmedya/dbpromote/internal/database"
	"github.com/dbsmedya/dbpromote/internal/diff"
	"github.com/dbsmedya/dbpromote/internal/executor"
	"github.com/dbsmedya/dbpromote/internal/graph"
	"github.com/dbsmedya/dbpromote/internal/lock"
	"github.com/dbsmedya/dbpromote/internal/logger"
	"github.com/dbsmedya/dbpromote/internal/planner"
	"github.com/dbsmedya/dbpromote/internal/schema"
)

// RunResult contains statistics and status of one promotion run.
type RunResult struct {
	RunName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	PlanSteps   int
	BackupName  string
	Report      *executor.Report
	Success     bool
}

// PlanContext holds everything computed before the target is touched. The
// diff and plan commands stop here; a full run continues into execution.
type PlanContext struct {
	SourceDefs  map[string]*schema.TableDefinition
	SourceNames []string
	TargetDefs  map[string]*schema.TableDefinition
	TargetNames []string
	Diffs       *orderedmap.OrderedMap[string, *diff.TableDiff]
	Resolution  *graph.Resolution
	Plan        *planner.MigrationPlan
}

// Orchestrator coordinates the promotion phases against one source/target
// pair. Create one per run.
type Orchestrator struct {
	cfg       *config.Config
	dbManager *database.Manager
	logger    *logger.Logger
}

// NewOrchestrator creates an orchestrator. The database manager must already
// be connected to both instances.
func NewOrchestrator(cfg *config.Config, dbManager *database.Manager, log *logger.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if dbManager == nil {
		return nil, fmt.Errorf("database manager is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		cfg:       cfg,
		dbManager: dbManager,
		logger:    log,
	}, nil
}

// Plan captures both schemas and computes the migration plan without writing
// anything to the target.
func (o *Orchestrator) Plan(ctx context.Context) (*PlanContext, error) {
	exclude := o.cfg.ExcludedSet()

	sourceIntrospector := schema.NewIntrospector(
		o.dbManager.Source, o.cfg.Source.Database, o.cfg.Source.Label, o.logger)
	targetIntrospector := schema.NewIntrospector(
		o.dbManager.Target, o.cfg.Target.Database, o.cfg.Target.Label, o.logger)

	sourceDefs, sourceNames, err := sourceIntrospector.Snapshot(ctx, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to capture source schema: %w", err)
	}
	targetDefs, targetNames, err := targetIntrospector.Snapshot(ctx, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to capture target schema: %w", err)
	}

	o.logger.Infow("Schemas captured",
		"source_tables", len(sourceNames),
		"target_tables", len(targetNames),
	)

	diffs := diff.NewDiffer(o.logger).DiffAll(sourceDefs, sourceNames, targetDefs)

	g, selfRefs := graph.NewBuilder(o.logger).Build(sourceDefs, sourceNames)
	resolution, err := graph.NewResolver(o.logger).Resolve(g, selfRefs)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve table dependencies: %w", err)
	}

	plan, err := planner.NewPlanner(o.logger).Build(diffs, resolution, o.cfg.Tables.Maintained)
	if err != nil {
		return nil, fmt.Errorf("failed to build migration plan: %w", err)
	}

	return &PlanContext{
		SourceDefs:  sourceDefs,
		SourceNames: sourceNames,
		TargetDefs:  targetDefs,
		TargetNames: targetNames,
		Diffs:       diffs,
		Resolution:  resolution,
		Plan:        plan,
	}, nil
}

// Run executes a full promotion: plan, then backup and execution under the
// target's advisory lock. An empty plan succeeds without taking the lock or
// writing a backup.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	startedAt := time.Now()
	result := &RunResult{
		RunName:   fmt.Sprintf("promote_%s", startedAt.Format("20060102_150405")),
		StartedAt: startedAt,
	}
	log := o.logger.WithRun(result.RunName)

	planCtx, err := o.Plan(ctx)
	if err != nil {
		return result, err
	}
	result.PlanSteps = len(planCtx.Plan.Steps)

	if planCtx.Plan.Empty() {
		log.Infow("Target already matches source; nothing to do")
		result.Success = true
		o.finish(result)
		return result, nil
	}

	log.Infow("Migration plan ready",
		"steps", result.PlanSteps,
		"summary", planCtx.Plan.Summary(),
	)

	promotionLock := lock.NewPromotionLock(o.dbManager.Target, o.cfg.Target.Database)
	err = promotionLock.WithLock(ctx, lock.TimeoutShort, func() error {
		return o.runLocked(ctx, log, planCtx, result)
	})
	o.finish(result)
	if err != nil {
		return result, err
	}

	result.Success = true
	log.Infow("Promotion complete",
		"steps", result.PlanSteps,
		"duration", result.Duration,
		"backup", result.BackupName,
	)
	return result, nil
}

// runLocked performs the mutating phases while the advisory lock is held.
func (o *Orchestrator) runLocked(ctx context.Context, log *logger.Logger, planCtx *PlanContext, result *RunResult) error {
	if o.cfg.Backup.Enabled {
		record, err := o.createBackup(ctx, log, planCtx)
		if err != nil {
			return err
		}
		result.BackupName = record.Name
	} else {
		log.Warnw("Backup disabled; promoting without a restore point")
	}

	exec, err := executor.NewExecutor(o.dbManager.Source, o.dbManager.Target, o.cfg.Processing, log)
	if err != nil {
		return err
	}

	report, err := exec.Execute(ctx, planCtx.Plan)
	result.Report = report
	if err != nil {
		return fmt.Errorf("promotion halted: %w", err)
	}
	return nil
}

// createBackup captures every table the plan touches and prunes old backups
// afterwards. A backup failure aborts the run before any mutation.
func (o *Orchestrator) createBackup(ctx context.Context, log *logger.Logger, planCtx *PlanContext) (*backup.Record, error) {
	targetIntrospector := schema.NewIntrospector(
		o.dbManager.Target, o.cfg.Target.Database, o.cfg.Target.Label, log)
	coordinator := backup.NewCoordinator(o.dbManager.Target, targetIntrospector, o.cfg.Backup, log)

	record, err := coordinator.Create(ctx, o.cfg.Target.Label, planCtx.Plan.Tables())
	if err != nil {
		return nil, fmt.Errorf("aborting before any change: %w", err)
	}

	if pruned, pruneErr := coordinator.Prune(record.Name); pruneErr != nil {
		// Retention trouble does not endanger the run itself.
		log.Warnw("Backup retention pruning failed", "error", pruneErr)
	} else if pruned > 0 {
		log.Infow("Old backups pruned", "count", pruned)
	}

	return record, nil
}

func (o *Orchestrator) finish(result *RunResult) {
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
}
