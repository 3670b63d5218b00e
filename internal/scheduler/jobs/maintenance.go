package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/alphalens/pkg/logger"
)

// 유지보수 기준
const (
	DefaultStaleAfter = time.Hour
	DefaultRetention  = 30 * 24 * time.Hour
)

// MaintenanceJob fails abandoned tasks and purges old finished ones
type MaintenanceJob struct {
	tasks      TaskMaintainer
	schedule   string
	staleAfter time.Duration
	retention  time.Duration
	logger     *logger.Logger
	now        func() time.Time
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(tasks TaskMaintainer, schedule string, log *logger.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		tasks:      tasks,
		schedule:   schedule,
		staleAfter: DefaultStaleAfter,
		retention:  DefaultRetention,
		logger:     log.WithField("job", NameMaintenance),
		now:        time.Now,
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return NameMaintenance
}

// Schedule returns the cron schedule
func (j *MaintenanceJob) Schedule() string {
	return j.schedule
}

// Run executes the maintenance sweep
func (j *MaintenanceJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled maintenance")

	// 1. Recover tasks left behind by a dead owner
	failed, requeued, err := j.tasks.RecoverStale(ctx, j.staleAfter)
	if err != nil {
		return fmt.Errorf("recover stale tasks: %w", err)
	}

	// 2. Purge finished tasks past retention
	purged, err := j.tasks.Purge(ctx, j.now().Add(-j.retention))
	if err != nil {
		return fmt.Errorf("purge tasks: %w", err)
	}

	if failed > 0 || requeued > 0 || purged > 0 {
		j.logger.WithFields(map[string]interface{}{
			"failed":   failed,
			"requeued": requeued,
			"purged":   purged,
		}).Info("Maintenance completed")
	}
	return nil
}
