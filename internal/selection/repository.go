package selection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/alphalens/internal/contracts"
)

// Repository handles selection run persistence
// ⭐ SSOT: 선정 결과 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new selection repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSelection stores one screening run and returns its id
func (r *Repository) SaveSelection(ctx context.Context, sel *Selection) (int64, error) {
	criteriaJSON, err := json.Marshal(sel.Criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal criteria: %w", err)
	}
	rankedJSON, err := json.Marshal(sel.Ranked)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ranked: %w", err)
	}
	skippedJSON, err := json.Marshal(sel.Skipped)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal skipped: %w", err)
	}

	query := `
		INSERT INTO analysis.screening_runs (
			criteria, universe, evaluated, passed, ranked, skipped, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err = r.pool.QueryRow(ctx, query,
		criteriaJSON, sel.Universe, sel.Evaluated, len(sel.Ranked),
		rankedJSON, skippedJSON, sel.GeneratedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save screening run: %w", err)
	}

	return id, nil
}

// LatestSelection retrieves the most recent screening run
func (r *Repository) LatestSelection(ctx context.Context) (*Selection, error) {
	query := `
		SELECT criteria, universe, evaluated, ranked, skipped, generated_at
		FROM analysis.screening_runs
		ORDER BY generated_at DESC
		LIMIT 1
	`

	var (
		sel                                   Selection
		criteriaJSON, rankedJSON, skippedJSON []byte
	)
	err := r.pool.QueryRow(ctx, query).Scan(
		&criteriaJSON, &sel.Universe, &sel.Evaluated, &rankedJSON, &skippedJSON, &sel.GeneratedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("screening run: %w", contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get screening run: %w", err)
	}

	if err := json.Unmarshal(criteriaJSON, &sel.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal(rankedJSON, &sel.Ranked); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranked: %w", err)
	}
	if err := json.Unmarshal(skippedJSON, &sel.Skipped); err != nil {
		return nil, fmt.Errorf("failed to unmarshal skipped: %w", err)
	}

	return &sel, nil
}
