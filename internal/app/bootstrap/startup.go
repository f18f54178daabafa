// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/docflow/internal/app/store/audit"
	documentstore "github.com/dalemusser/docflow/internal/app/store/documents"
	kpistore "github.com/dalemusser/docflow/internal/app/store/kpi"
	notificationstore "github.com/dalemusser/docflow/internal/app/store/notifications"
	jobstore "github.com/dalemusser/docflow/internal/app/store/sideeffectjobs"
	historystore "github.com/dalemusser/docflow/internal/app/store/stagehistory"
	userstore "github.com/dalemusser/docflow/internal/app/store/users"
	violationstore "github.com/dalemusser/docflow/internal/app/store/violations"
	"github.com/dalemusser/docflow/internal/app/system/auditlog"
	"github.com/dalemusser/docflow/internal/app/system/ratelimit"
	"github.com/dalemusser/docflow/internal/app/system/sideeffects"
	"github.com/dalemusser/docflow/internal/app/system/tasks"
	"github.com/dalemusser/docflow/internal/app/system/txn"
	"github.com/dalemusser/docflow/internal/app/system/workers"
	"github.com/dalemusser/docflow/internal/app/workflow"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup wires the Mongo stores into the workflow services and starts the
// background goroutines: the side-effect retry worker and the maintenance
// scheduler. It runs after schema setup and before BuildHandler.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.Runtime == nil {
		return fmt.Errorf("startup: runtime not initialised by ConnectDB")
	}
	rt, err := buildRuntime(appCfg, deps, logger)
	if err != nil {
		logger.Error("workflow wiring failed", zap.Error(err))
		return err
	}
	*deps.Runtime = *rt

	deps.Runtime.Retry.Start()
	deps.Runtime.Scheduler.Start()
	logger.Info("background workers started",
		zap.Duration("retry_interval", appCfg.SideEffectRetryInterval),
		zap.Int("max_attempts", appCfg.SideEffectMaxAttempts))
	return nil
}

// buildRuntime constructs the services and workers without starting them.
func buildRuntime(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*Runtime, error) {
	db := deps.MongoDatabase

	reg, wfCfg, err := appCfg.workflowConfig()
	if err != nil {
		return nil, err
	}

	jobs := jobstore.New(db)
	notes := notificationstore.New(db)
	users := userstore.New(db)
	events := audit.New(db)
	auditor := auditlog.New(events, logger, auditlog.Config{
		Document:   appCfg.AuditLogDocument,
		Discipline: appCfg.AuditLogDiscipline,
	})
	dispatcher := sideeffects.NewDispatcher(notes, auditor, jobs, logger.Named("sideeffects"), appCfg.SideEffectMaxAttempts)

	svc, err := workflow.New(workflow.Deps{
		Documents:  documentstore.New(db),
		History:    historystore.New(db),
		Violations: violationstore.New(db),
		KPI:        kpistore.New(db),
		Users:      users,
		Tx:         txn.NewRunner(db, logger),
		Effects:    dispatcher,
		Stages:     reg,
		Log:        logger,
	}, wfCfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Services: svc,
		Jobs:     jobs,
		Inbox:    notes,
		Audit:    events,
		Users:    users,
		Retry:    workers.NewSideEffectRetry(jobs, dispatcher, logger.Named("retry"), appCfg.SideEffectRetryInterval),
		Scheduler: tasks.NewScheduler(logger.Named("tasks"),
			tasks.StaleSideEffectJob(jobs, logger, appCfg.StaleJobThreshold),
			tasks.NotificationPruneJob(notes, logger, appCfg.NotificationRetention),
		),
	}
	if appCfg.ScanRateLimit > 0 {
		rt.ScanLimit = ratelimit.New(appCfg.ScanRateLimit, appCfg.ScanRateWindow)
	}
	return rt, nil
}
