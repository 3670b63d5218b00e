package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/alphalens/internal/contracts"
)

// Repository implements contracts.InstrumentRepository and BarStore on PostgreSQL
// ⭐ SSOT: 종목/일봉 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new instrument repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindInstrument returns the instrument or ErrNotFound
func (r *Repository) FindInstrument(ctx context.Context, symbol string) (*contracts.Instrument, error) {
	query := `
		SELECT symbol, name, market, industry, active, latest_price, updated_at
		FROM market.instruments
		WHERE symbol = $1
	`

	var inst contracts.Instrument
	err := r.pool.QueryRow(ctx, query, symbol).Scan(
		&inst.Symbol, &inst.Name, &inst.Market, &inst.Industry, &inst.Active, &inst.LatestPrice, &inst.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("instrument %s: %w", symbol, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query instrument: %w", err)
	}
	return &inst, nil
}

// ListActive returns the active universe ordered by symbol
func (r *Repository) ListActive(ctx context.Context) ([]contracts.Instrument, error) {
	query := `
		SELECT symbol, name, market, industry, active, latest_price, updated_at
		FROM market.instruments
		WHERE active = TRUE
		ORDER BY symbol
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []contracts.Instrument
	for rows.Next() {
		var inst contracts.Instrument
		if err := rows.Scan(&inst.Symbol, &inst.Name, &inst.Market, &inst.Industry, &inst.Active, &inst.LatestPrice, &inst.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpsertInstrument creates or updates the master record
func (r *Repository) UpsertInstrument(ctx context.Context, inst contracts.Instrument) error {
	query := `
		INSERT INTO market.instruments (symbol, name, market, industry, active, latest_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			market = EXCLUDED.market,
			industry = EXCLUDED.industry,
			active = EXCLUDED.active,
			latest_price = EXCLUDED.latest_price,
			updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query,
		inst.Symbol, inst.Name, inst.Market, inst.Industry, inst.Active, inst.LatestPrice,
	); err != nil {
		return fmt.Errorf("upsert instrument %s: %w", inst.Symbol, err)
	}
	return nil
}

// SaveBars upserts daily bars in one batch and moves latest_price to the last close
func (r *Repository) SaveBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO market.daily_bars (symbol, trade_date, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, symbol, b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
	}
	batch.Queue(`UPDATE market.instruments SET latest_price = $2, updated_at = NOW() WHERE symbol = $1`,
		symbol, bars[len(bars)-1].Close)

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save bars %s: %w", symbol, err)
	}
	return nil
}

// LoadBars returns stored bars since from, oldest first
func (r *Repository) LoadBars(ctx context.Context, symbol string, from time.Time) ([]contracts.Bar, error) {
	query := `
		SELECT trade_date, open, high, low, close, volume
		FROM market.daily_bars
		WHERE symbol = $1 AND trade_date >= $2
		ORDER BY trade_date ASC
	`

	rows, err := r.pool.Query(ctx, query, symbol, from)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []contracts.Bar
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
