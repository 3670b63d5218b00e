package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/alphalens/internal/contracts"
)

// Repository implements contracts.TaskRepository on PostgreSQL
// ⭐ SSOT: analysis.tasks 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new task repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `
	id, symbol, kind, time_range, priority, requester_id,
	state, progress, error, created_at, started_at, completed_at, heartbeat_at, result
`

// SaveTask inserts a new task record. An existing id is never overwritten.
func (r *Repository) SaveTask(ctx context.Context, task *contracts.AnalysisTask) error {
	result, err := marshalResult(task)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO analysis.tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Symbol,
		string(task.Kind),
		string(task.TimeRange),
		string(task.Priority),
		task.RequesterID,
		string(task.State),
		task.Progress,
		task.Error,
		task.CreatedAt,
		task.StartedAt,
		task.CompletedAt,
		task.HeartbeatAt,
		result,
	)
	if err != nil {
		return fmt.Errorf("failed to save task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s already exists: %w", task.ID, contracts.ErrInvalidState)
	}
	return nil
}

// UpdateTask writes the mutable fields only while the stored state is in from.
// A concurrent transition by another process yields ErrInvalidState.
func (r *Repository) UpdateTask(ctx context.Context, task *contracts.AnalysisTask, from ...contracts.TaskState) error {
	result, err := marshalResult(task)
	if err != nil {
		return err
	}

	expected := make([]string, len(from))
	for i, st := range from {
		expected[i] = string(st)
	}

	query := `
		UPDATE analysis.tasks SET
			state = $2,
			progress = $3,
			error = $4,
			started_at = $5,
			completed_at = $6,
			heartbeat_at = $7,
			result = $8,
			updated_at = NOW()
		WHERE id = $1 AND state = ANY($9)
	`

	tag, err := r.pool.Exec(ctx, query,
		task.ID,
		string(task.State),
		task.Progress,
		task.Error,
		task.StartedAt,
		task.CompletedAt,
		task.HeartbeatAt,
		result,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("task %s is no longer in %v: %w", task.ID, from, contracts.ErrInvalidState)
	}
	return nil
}

func marshalResult(task *contracts.AnalysisTask) ([]byte, error) {
	if task.Result == nil {
		return nil, nil
	}
	data, err := json.Marshal(task.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return data, nil
}

// FindTask retrieves one task by id
func (r *Repository) FindTask(ctx context.Context, id string) (*contracts.AnalysisTask, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis.tasks WHERE id = $1`

	task, err := scanTask(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// FindLatestCompositeResult returns the newest completed result for symbol/kind
func (r *Repository) FindLatestCompositeResult(ctx context.Context, symbol string, kind contracts.AnalysisKind) (*contracts.CompositeResult, error) {
	query := `
		SELECT result
		FROM analysis.tasks
		WHERE symbol = $1 AND kind = $2 AND state = 'completed' AND result IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1
	`

	var data []byte
	err := r.pool.QueryRow(ctx, query, symbol, string(kind)).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("result %s/%s: %w", symbol, kind, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest result: %w", err)
	}

	var result contracts.CompositeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}

// ListByState returns tasks in state ordered by creation time
func (r *Repository) ListByState(ctx context.Context, state contracts.TaskState) ([]*contracts.AnalysisTask, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis.tasks WHERE state = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, string(state))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*contracts.AnalysisTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tasks, nil
}

// DeleteFinishedBefore removes terminal tasks completed before the cutoff
func (r *Repository) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM analysis.tasks
		WHERE state IN ('completed', 'failed', 'cancelled')
		  AND completed_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTask(row pgx.Row) (*contracts.AnalysisTask, error) {
	var task contracts.AnalysisTask
	var kind, timeRange, priority, state string
	var result []byte

	err := row.Scan(
		&task.ID,
		&task.Symbol,
		&kind,
		&timeRange,
		&priority,
		&task.RequesterID,
		&state,
		&task.Progress,
		&task.Error,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
		&task.HeartbeatAt,
		&result,
	)
	if err != nil {
		return nil, err
	}

	task.Kind = contracts.AnalysisKind(kind)
	task.TimeRange = contracts.TimeRange(timeRange)
	task.Priority = contracts.Priority(priority)
	task.State = contracts.TaskState(state)

	if len(result) > 0 {
		var r contracts.CompositeResult
		if err := json.Unmarshal(result, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		task.Result = &r
	}

	return &task, nil
}
