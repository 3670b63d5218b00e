package contracts

import (
	"fmt"
	"time"
)

// AnalysisKind selects the flavour of report requested
type AnalysisKind string

const (
	KindFundamental   AnalysisKind = "fundamental"
	KindTechnical     AnalysisKind = "technical"
	KindSentiment     AnalysisKind = "sentiment"
	KindComprehensive AnalysisKind = "comprehensive"
)

// Valid reports whether k is a known kind
func (k AnalysisKind) Valid() bool {
	switch k {
	case KindFundamental, KindTechnical, KindSentiment, KindComprehensive:
		return true
	}
	return false
}

// TaskState is the lifecycle state of an AnalysisTask
// ⭐ SSOT: pending → processing → {completed | failed}, pending/processing → cancelled
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateProcessing TaskState = "processing"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
	StateCancelled  TaskState = "cancelled"
)

// IsTerminal reports whether no further transition is allowed
func (s TaskState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether from → to is an edge of the lifecycle graph
func (s TaskState) CanTransition(to TaskState) bool {
	switch s {
	case StatePending:
		return to == StateProcessing || to == StateCancelled
	case StateProcessing:
		return to == StateCompleted || to == StateFailed || to == StateCancelled
	}
	return false
}

// Priority orders queued work
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// TimeRange is the requested history window
type TimeRange string

const (
	Range1M TimeRange = "1m"
	Range3M TimeRange = "3m"
	Range6M TimeRange = "6m"
	Range1Y TimeRange = "1y"
)

// Days returns the number of calendar days covered
func (r TimeRange) Days() (int, error) {
	switch r {
	case Range1M:
		return 30, nil
	case Range3M:
		return 90, nil
	case Range6M:
		return 180, nil
	case Range1Y:
		return 365, nil
	}
	return 0, fmt.Errorf("unknown time range %q: %w", r, ErrInvalidArgument)
}

// AnalysisTask is one analysis request and its outcome
// ⭐ SSOT: Task Orchestrator만 변경 가능
type AnalysisTask struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Kind        AnalysisKind     `json:"kind"`
	TimeRange   TimeRange        `json:"time_range"`
	Priority    Priority         `json:"priority"`
	RequesterID string           `json:"requester_id"`
	State       TaskState        `json:"state"`
	Progress    int              `json:"progress"` // 0 ~ 100
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time       `json:"heartbeat_at,omitempty"` // 실행 소유자 생존 신호
	Result      *CompositeResult `json:"result,omitempty"`
}

// Clone returns a copy safe to hand to other goroutines
func (t *AnalysisTask) Clone() *AnalysisTask {
	if t == nil {
		return nil
	}
	c := *t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	if t.HeartbeatAt != nil {
		ts := *t.HeartbeatAt
		c.HeartbeatAt = &ts
	}
	return &c
}
