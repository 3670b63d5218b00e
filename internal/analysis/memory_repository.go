package analysis

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
)

// MemoryRepository is a process-local TaskRepository (development, tests)
type MemoryRepository struct {
	mu    sync.RWMutex
	tasks map[string]*contracts.AnalysisTask
}

// NewMemoryRepository creates an empty store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{tasks: make(map[string]*contracts.AnalysisTask)}
}

// SaveTask stores a copy of a new task
func (m *MemoryRepository) SaveTask(ctx context.Context, task *contracts.AnalysisTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; ok {
		return fmt.Errorf("task %s already exists: %w", task.ID, contracts.ErrInvalidState)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

// UpdateTask replaces the stored copy only while its state is in from
func (m *MemoryRepository) UpdateTask(ctx context.Context, task *contracts.AnalysisTask, from ...contracts.TaskState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.tasks[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, contracts.ErrNotFound)
	}
	if !slices.Contains(from, cur.State) {
		return fmt.Errorf("task %s is %s, expected %v: %w", task.ID, cur.State, from, contracts.ErrInvalidState)
	}
	m.tasks[task.ID] = task.Clone()
	return nil
}

// FindTask returns a copy of the stored task
func (m *MemoryRepository) FindTask(ctx context.Context, id string) (*contracts.AnalysisTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, contracts.ErrNotFound)
	}
	return task.Clone(), nil
}

// FindLatestCompositeResult returns the newest completed result for symbol/kind
func (m *MemoryRepository) FindLatestCompositeResult(ctx context.Context, symbol string, kind contracts.AnalysisKind) (*contracts.CompositeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *contracts.AnalysisTask
	for _, t := range m.tasks {
		if t.Symbol != symbol || t.Kind != kind || t.State != contracts.StateCompleted || t.Result == nil || t.CompletedAt == nil {
			continue
		}
		if latest == nil || t.CompletedAt.After(*latest.CompletedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("result %s/%s: %w", symbol, kind, contracts.ErrNotFound)
	}
	r := *latest.Result
	return &r, nil
}

// ListByState returns tasks in state ordered by creation time
func (m *MemoryRepository) ListByState(ctx context.Context, state contracts.TaskState) ([]*contracts.AnalysisTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.AnalysisTask
	for _, t := range m.tasks {
		if t.State == state {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteFinishedBefore removes terminal tasks completed before the cutoff
func (m *MemoryRepository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tasks {
		if t.State.IsTerminal() && t.CompletedAt != nil && t.CompletedAt.Before(before) {
			delete(m.tasks, id)
			n++
		}
	}
	return n, nil
}
