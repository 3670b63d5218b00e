// Package jobs holds the scheduled jobs: market data refresh, batch
// analysis, task maintenance and the daily report.
package jobs

import (
	"context"
	"time"

	"github.com/wonny/alphalens/internal/analysis"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/marketdata"
	"github.com/wonny/alphalens/internal/selection"
)

// Job names (also lock names)
const (
	NamePriceRefresh   = "price_refresh"
	NameHistoryRefresh = "history_refresh"
	NameBatchAnalysis  = "batch_analysis"
	NameMaintenance    = "maintenance"
	NameDailyReport    = "daily_report"
)

// 스케줄러가 생성하는 task의 요청자
const schedulerRequester = "scheduler"

// Refresher re-fetches market data for a symbol list
type Refresher interface {
	Refresh(ctx context.Context, symbols []string, kind marketdata.RefreshKind, workers int) marketdata.RefreshResult
}

// BatchRunner re-analyzes many symbols with per-symbol isolation
type BatchRunner interface {
	RunBatch(ctx context.Context, symbols []string, kind contracts.AnalysisKind, requesterID string) []analysis.BatchResult
}

// TaskMaintainer recovers abandoned tasks and purges old ones
type TaskMaintainer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (failed, requeued int, err error)
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// Selector screens the universe
type Selector interface {
	Select(ctx context.Context, universe []string, criteria contracts.ScreeningCriteria) (*selection.Selection, error)
	DefaultCriteria() contracts.ScreeningCriteria
	TopN() int
}

// SelectionStore persists screening runs
type SelectionStore interface {
	SaveSelection(ctx context.Context, sel *selection.Selection) (int64, error)
}

// activeSymbols lists the active universe
func activeSymbols(ctx context.Context, instruments contracts.InstrumentRepository) ([]string, error) {
	active, err := instruments.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return marketdata.Symbols(active), nil
}

var (
	_ Refresher      = (*marketdata.Source)(nil)
	_ BatchRunner    = (*analysis.Service)(nil)
	_ TaskMaintainer = (*analysis.Service)(nil)
	_ Selector       = (*selection.Screener)(nil)
	_ SelectionStore = (*selection.Repository)(nil)
)
