package contracts

import (
	"context"
	"time"
)

// DataSource supplies market data for one symbol
// ⭐ SSOT: 외부 데이터 수집 인터페이스
type DataSource interface {
	GetLatestQuote(ctx context.Context, symbol string) (*Quote, error)
	GetHistoricalBars(ctx context.Context, symbol string, days int) ([]Bar, error)
	GetRecentNews(ctx context.Context, symbol string) ([]NewsItem, error)
	GetFundamentals(ctx context.Context, symbol string) (*Fundamentals, error)
	GetMarketContext(ctx context.Context, symbol string) (*MarketContext, error)
}

// InstrumentRepository looks up the tradable universe
type InstrumentRepository interface {
	FindInstrument(ctx context.Context, symbol string) (*Instrument, error)
	ListActive(ctx context.Context) ([]Instrument, error)
}

// TaskRepository persists analysis tasks and their results.
// UpdateTask writes only while the stored state is one of from and returns
// ErrInvalidState otherwise; it is the only way a state may change after creation.
// ⭐ SSOT: 여러 프로세스가 같은 저장소를 공유해도 terminal 상태는 덮어쓰지 않음
type TaskRepository interface {
	SaveTask(ctx context.Context, task *AnalysisTask) error
	UpdateTask(ctx context.Context, task *AnalysisTask, from ...TaskState) error
	FindTask(ctx context.Context, id string) (*AnalysisTask, error)
	FindLatestCompositeResult(ctx context.Context, symbol string, kind AnalysisKind) (*CompositeResult, error)
	ListByState(ctx context.Context, state TaskState) ([]*AnalysisTask, error)
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers a finished report (fire-and-forget)
type Notifier interface {
	Notify(ctx context.Context, userID string, task *AnalysisTask) error
}
