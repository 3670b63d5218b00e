// Package selection screens and ranks instruments by their latest composite
// result and turns a single result into a qualitative diagnosis.
package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/alphalens/internal/analysis"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/strategyconfig"
	"github.com/wonny/alphalens/pkg/logger"
)

// Orchestrator is the slice of the analysis service selection depends on
type Orchestrator interface {
	LatestResult(ctx context.Context, symbol string, kind contracts.AnalysisKind) (*contracts.CompositeResult, error)
	Create(ctx context.Context, req analysis.CreateRequest) (*contracts.AnalysisTask, error)
	Wait(ctx context.Context, id string, timeout time.Duration) (*contracts.AnalysisTask, error)
}

// Options tunes result generation
type Options struct {
	Workers     int           // 결과 생성 동시 실행 수
	WaitTimeout time.Duration // 생성 후 대기 상한
	RequesterID string        // 생성 task의 요청자
}

// DefaultOptions returns the standard screening settings
func DefaultOptions() Options {
	return Options{
		Workers:     5,
		WaitTimeout: 2 * time.Minute,
		RequesterID: "screener",
	}
}

// SkippedInstrument is an instrument whose result could not be obtained
type SkippedInstrument struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Selection is the outcome of one screening run
type Selection struct {
	Criteria    contracts.ScreeningCriteria `json:"criteria"`
	Universe    int                         `json:"universe"`
	Evaluated   int                         `json:"evaluated"`
	Ranked      []RankedInstrument          `json:"ranked"`
	Skipped     []SkippedInstrument         `json:"skipped"`
	GeneratedAt time.Time                   `json:"generated_at"`
}

// Top returns the first n ranked instruments
func (s *Selection) Top(n int) []RankedInstrument {
	if n <= 0 || n > len(s.Ranked) {
		n = len(s.Ranked)
	}
	return s.Ranked[:n]
}

// resolver obtains a fresh enough comprehensive result, generating one when needed
type resolver struct {
	orch   Orchestrator
	opts   Options
	logger *logger.Logger
	now    func() time.Time
}

func (r *resolver) obtain(ctx context.Context, symbol string, maxAge time.Duration) (*contracts.CompositeResult, error) {
	latest, err := r.orch.LatestResult(ctx, symbol, contracts.KindComprehensive)
	switch {
	case err == nil && r.now().Sub(latest.GeneratedAt) <= maxAge:
		return latest, nil
	case err != nil && !errors.Is(err, contracts.ErrNotFound):
		return nil, fmt.Errorf("latest result %s: %w", symbol, err)
	}

	// 결과 없음 또는 신선도 초과 → 새로 생성 후 제한 대기
	task, err := r.orch.Create(ctx, analysis.CreateRequest{
		Symbol:      symbol,
		Kind:        contracts.KindComprehensive,
		Priority:    contracts.PriorityNormal,
		RequesterID: r.opts.RequesterID,
	})
	if err != nil {
		return nil, fmt.Errorf("create analysis %s: %w", symbol, err)
	}

	r.logger.WithFields(map[string]interface{}{
		"symbol":  symbol,
		"task_id": task.ID,
	}).Debug("Generating composite result")

	final, err := r.orch.Wait(ctx, task.ID, r.opts.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("wait analysis %s: %w", symbol, err)
	}
	if final.State != contracts.StateCompleted || final.Result == nil {
		return nil, fmt.Errorf("analysis %s ended %s %s: %w", symbol, final.State, final.Error, contracts.ErrExecutionFailure)
	}
	return final.Result, nil
}

// Screener selects and ranks instruments by their composite results
// ⭐ SSOT: 종목 선정 로직은 여기서만
type Screener struct {
	resolver
	instruments contracts.InstrumentRepository
	screening   strategyconfig.Screening
}

// NewScreener creates a new screener
func NewScreener(
	orch Orchestrator,
	instruments contracts.InstrumentRepository,
	screening strategyconfig.Screening,
	opts Options,
	log *logger.Logger,
) *Screener {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = def.WaitTimeout
	}
	if opts.RequesterID == "" {
		opts.RequesterID = def.RequesterID
	}
	return &Screener{
		resolver: resolver{
			orch:   orch,
			opts:   opts,
			logger: log.WithModule("screener"),
			now:    time.Now,
		},
		instruments: instruments,
		screening:   screening,
	}
}

// DefaultCriteria returns the profile's default thresholds
func (s *Screener) DefaultCriteria() contracts.ScreeningCriteria {
	return s.screening.Defaults.ToContract()
}

// TopN returns the profile's report size
func (s *Screener) TopN() int {
	return s.screening.TopN
}

type screenJob struct {
	index  int
	symbol string
}

type screenOutcome struct {
	index  int
	symbol string
	result *contracts.CompositeResult
	err    error
}

// Select ranks the universe (all active instruments when empty) by overall
// rating, keeping only results that satisfy every criterion
func (s *Screener) Select(ctx context.Context, universe []string, criteria contracts.ScreeningCriteria) (*Selection, error) {
	if criteria.MaxRiskLevel != "" && criteria.MaxRiskLevel.Rank() == 0 {
		return nil, fmt.Errorf("unknown risk level %q: %w", criteria.MaxRiskLevel, contracts.ErrInvalidArgument)
	}

	if len(universe) == 0 {
		active, err := s.instruments.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active instruments: %w", err)
		}
		for _, inst := range active {
			universe = append(universe, inst.Symbol)
		}
	}
	universe = dedupe(universe)

	workers := s.opts.Workers
	if workers > len(universe) {
		workers = len(universe)
	}

	// 1. Create worker pool
	jobs := make(chan screenJob, len(universe))
	outcomes := make(chan screenOutcome, len(universe))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := s.obtain(ctx, job.symbol, s.screening.Freshness())
				outcomes <- screenOutcome{index: job.index, symbol: job.symbol, result: res, err: err}
			}
		}()
	}

	// 2. Send symbols to workers
	for i, symbol := range universe {
		jobs <- screenJob{index: i, symbol: symbol}
	}
	close(jobs)

	// 3. Wait for all workers to complete
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// 4. Collect results in universe order
	ordered := make([]screenOutcome, len(universe))
	for o := range outcomes {
		ordered[o.index] = o
	}

	sel := &Selection{
		Criteria:    criteria,
		Universe:    len(universe),
		Ranked:      []RankedInstrument{},
		Skipped:     []SkippedInstrument{},
		GeneratedAt: s.now(),
	}
	candidates := make([]RankedInstrument, 0, len(universe))
	for _, o := range ordered {
		if o.err != nil {
			sel.Skipped = append(sel.Skipped, SkippedInstrument{Symbol: o.symbol, Reason: o.err.Error()})
			continue
		}
		sel.Evaluated++
		if criteria.Matches(o.result) {
			candidates = append(candidates, RankedInstrument{Symbol: o.symbol, Result: o.result})
		}
	}
	sel.Ranked = Rank(candidates)

	s.logger.WithFields(map[string]interface{}{
		"universe":  sel.Universe,
		"evaluated": sel.Evaluated,
		"passed":    len(sel.Ranked),
		"skipped":   len(sel.Skipped),
	}).Info("Screening completed")

	return sel, nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}
