package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/marketdata"
	"github.com/wonny/alphalens/pkg/logger"
)

// RefreshJob re-fetches quotes or daily bars for the active universe
// ⭐ SSOT: 시세 갱신 스케줄은 이 Job에서만
type RefreshJob struct {
	name        string
	schedule    string
	kind        marketdata.RefreshKind
	refresher   Refresher
	instruments contracts.InstrumentRepository
	workers     int
	logger      *logger.Logger
}

// NewPriceRefreshJob refreshes latest quotes (intraday)
func NewPriceRefreshJob(refresher Refresher, instruments contracts.InstrumentRepository, schedule string, workers int, log *logger.Logger) *RefreshJob {
	return newRefreshJob(NamePriceRefresh, schedule, marketdata.RefreshQuotes, refresher, instruments, workers, log)
}

// NewHistoryRefreshJob refreshes daily bars (after close)
func NewHistoryRefreshJob(refresher Refresher, instruments contracts.InstrumentRepository, schedule string, workers int, log *logger.Logger) *RefreshJob {
	return newRefreshJob(NameHistoryRefresh, schedule, marketdata.RefreshHistory, refresher, instruments, workers, log)
}

func newRefreshJob(name, schedule string, kind marketdata.RefreshKind, refresher Refresher, instruments contracts.InstrumentRepository, workers int, log *logger.Logger) *RefreshJob {
	return &RefreshJob{
		name:        name,
		schedule:    schedule,
		kind:        kind,
		refresher:   refresher,
		instruments: instruments,
		workers:     workers,
		logger:      log.WithField("job", name),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return j.name
}

// Schedule returns the cron schedule
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run executes the refresh; it fails only when no symbol could be refreshed
func (j *RefreshJob) Run(ctx context.Context) error {
	j.logger.Info("Starting scheduled market data refresh")

	symbols, err := activeSymbols(ctx, j.instruments)
	if err != nil {
		return fmt.Errorf("list active instruments: %w", err)
	}
	if len(symbols) == 0 {
		j.logger.Warn("No active instruments to refresh")
		return nil
	}

	res := j.refresher.Refresh(ctx, symbols, j.kind, j.workers)
	if len(res.Failed) == len(symbols) {
		return fmt.Errorf("refresh failed for all %d symbols: %w", len(symbols), contracts.ErrDataUnavailable)
	}

	j.logger.WithFields(map[string]interface{}{
		"refreshed": res.Refreshed,
		"stale":     res.Stale,
		"failed":    len(res.Failed),
	}).Info("Scheduled market data refresh completed")
	return nil
}
