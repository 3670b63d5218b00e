package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

// BatchAnalysisJob re-analyzes the active universe after the close
type BatchAnalysisJob struct {
	runner      BatchRunner
	instruments contracts.InstrumentRepository
	schedule    string
	logger      *logger.Logger
}

// NewBatchAnalysisJob creates a new batch analysis job
func NewBatchAnalysisJob(runner BatchRunner, instruments contracts.InstrumentRepository, schedule string, log *logger.Logger) *BatchAnalysisJob {
	return &BatchAnalysisJob{
		runner:      runner,
		instruments: instruments,
		schedule:    schedule,
		logger:      log.WithField("job", NameBatchAnalysis),
	}
}

// Name returns the job name
func (j *BatchAnalysisJob) Name() string {
	return NameBatchAnalysis
}

// Schedule returns the cron schedule
func (j *BatchAnalysisJob) Schedule() string {
	return j.schedule
}

// Run analyzes every active symbol; per-symbol failures are logged, not fatal
func (j *BatchAnalysisJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled batch analysis")

	symbols, err := activeSymbols(ctx, j.instruments)
	if err != nil {
		return fmt.Errorf("list active instruments: %w", err)
	}
	if len(symbols) == 0 {
		return nil
	}

	results := j.runner.RunBatch(ctx, symbols, contracts.KindComprehensive, schedulerRequester)

	failed := 0
	for _, r := range results {
		if r.OK() {
			continue
		}
		failed++
		j.logger.WithFields(map[string]interface{}{
			"symbol":  r.Symbol,
			"task_id": r.TaskID,
			"state":   r.State,
			"error":   r.Error,
		}).Warn("Symbol analysis did not complete")
	}

	if failed == len(results) {
		return fmt.Errorf("batch analysis failed for all %d symbols: %w", failed, contracts.ErrExecutionFailure)
	}

	j.logger.WithFields(map[string]interface{}{
		"completed": len(results) - failed,
		"failed":    failed,
	}).Info("Scheduled batch analysis completed")
	return nil
}
