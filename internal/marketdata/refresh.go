package marketdata

import (
	"context"
	"sync"

	"github.com/wonny/alphalens/internal/contracts"
)

// RefreshKind selects which inputs Refresh re-fetches
type RefreshKind int

const (
	RefreshQuotes RefreshKind = iota
	RefreshHistory
)

// RefreshResult summarizes one refresh run
type RefreshResult struct {
	Refreshed int      `json:"refreshed"`
	Stale     int      `json:"stale"`
	Failed    []string `json:"failed,omitempty"`
}

// Refresh re-fetches symbols from the provider over a bounded worker pool,
// ignoring cache freshness, and rewrites both cache tiers
func (s *Source) Refresh(ctx context.Context, symbols []string, kind RefreshKind, workers int) RefreshResult {
	if workers <= 0 {
		workers = 1
	}

	jobCh := make(chan string, len(symbols))
	type outcome struct {
		symbol string
		err    error
		stale  bool
	}
	resultCh := make(chan outcome, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobCh {
				if ctx.Err() != nil {
					resultCh <- outcome{symbol: symbol, err: ctx.Err()}
					continue
				}
				err := s.refreshOne(ctx, symbol, kind)
				resultCh <- outcome{symbol: symbol, err: err, stale: s.IsStale(symbol)}
			}
		}()
	}

	for _, symbol := range symbols {
		jobCh <- symbol
	}
	close(jobCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var res RefreshResult
	for o := range resultCh {
		switch {
		case o.err != nil:
			res.Failed = append(res.Failed, o.symbol)
		case o.stale:
			res.Stale++
		default:
			res.Refreshed++
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"kind":      kind,
		"refreshed": res.Refreshed,
		"stale":     res.Stale,
		"failed":    len(res.Failed),
	}).Info("Market data refreshed")

	return res
}

func (s *Source) refreshOne(ctx context.Context, symbol string, kind RefreshKind) error {
	switch kind {
	case RefreshHistory:
		_, err := s.historicalBars(ctx, symbol, MaxBarWindow, true)
		return err
	default:
		_, err := s.quote(ctx, symbol, true)
		return err
	}
}

// Symbols extracts the symbol list of instruments
func Symbols(instruments []contracts.Instrument) []string {
	out := make([]string, len(instruments))
	for i, inst := range instruments {
		out[i] = inst.Symbol
	}
	return out
}
