package analyzers

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

// Partial is one sub-analyzer's output
type Partial struct {
	Score          float64                  `json:"score"` // 0 ~ 100
	Recommendation contracts.Recommendation `json:"recommendation"`
	Confidence     int                      `json:"confidence"` // 30 ~ 95
	Factors        []string                 `json:"factors,omitempty"`
	Risks          []string                 `json:"risks,omitempty"`
}

func newPartial(score float64, present, required int) Partial {
	score = clampScore(score)
	return Partial{
		Score:          score,
		Recommendation: contracts.RecommendationFor(score / 10),
		Confidence:     Confidence(present, required),
	}
}

// Confidence = 30 + 65·present/required, clamped to [30, 95]
// ⭐ SSOT: 입력 완전성 기반 신뢰도
func Confidence(present, required int) int {
	if required <= 0 {
		return 30
	}
	c := 30 + 65*float64(present)/float64(required)
	return int(math.Round(math.Max(30, math.Min(95, c))))
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) {
		return 50
	}
	return math.Max(0, math.Min(100, v))
}

// Partials are the merged inputs of the composite engine
type Partials struct {
	Fundamental Partial
	Technical   Partial
	Sentiment   Partial
	Market      Partial
	Industry    Partial

	FundamentalDetails FundamentalDetails
	TechnicalDetails   TechnicalDetails
	SentimentDetails   SentimentDetails
	MarketDetails      MarketDetails
}

// Suite runs the four sub-analyzers
// ⭐ SSOT: 서브 분석기 병렬 실행은 여기서만
type Suite struct {
	fundamental *FundamentalAnalyzer
	technical   *TechnicalAnalyzer
	sentiment   *SentimentAnalyzer
	market      *MarketAnalyzer
	logger      *logger.Logger
}

// NewSuite creates all four analyzers
func NewSuite(log *logger.Logger) *Suite {
	log = log.WithModule("analyzers")
	return &Suite{
		fundamental: NewFundamentalAnalyzer(log),
		technical:   NewTechnicalAnalyzer(log),
		sentiment:   NewSentimentAnalyzer(log),
		market:      NewMarketAnalyzer(log),
		logger:      log,
	}
}

// Run executes the analyzers in parallel and waits for all four.
// A panic inside an analyzer is returned as ErrExecutionFailure.
func (s *Suite) Run(ctx context.Context, snap *contracts.Snapshot, ind contracts.IndicatorSet) (Partials, error) {
	var (
		out  Partials
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("%s analyzer panic: %v: %w", name, r, contracts.ErrExecutionFailure))
					mu.Unlock()
				}
			}()
			fn()
		}()
	}

	symbol := snap.Instrument.Symbol

	// 각 goroutine은 서로 다른 필드에만 쓴다
	run("fundamental", func() {
		out.Fundamental, out.FundamentalDetails = s.fundamental.Analyze(ctx, symbol, snap.Fundamentals)
	})
	run("technical", func() {
		out.Technical, out.TechnicalDetails = s.technical.Analyze(ctx, symbol, snap.Instrument.Bars, ind)
	})
	run("sentiment", func() {
		out.Sentiment, out.SentimentDetails = s.sentiment.Analyze(ctx, symbol, snap.News)
	})
	run("market", func() {
		out.Market, out.Industry, out.MarketDetails = s.market.Analyze(ctx, symbol, snap.Market, snap.Instrument.Bars, ind)
	})

	wg.Wait()

	if len(errs) > 0 {
		return Partials{}, errs[0]
	}
	return out, nil
}
