package scoring

import (
	"math"
	"time"

	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/strategyconfig"
	"github.com/wonny/alphalens/pkg/logger"
)

// Engine merges sub-analyzer partials into one CompositeResult
// ⭐ SSOT: 종합 점수/등급/목표가 계산은 여기서만
type Engine struct {
	weights strategyconfig.Weights
	targets strategyconfig.Targets
	logger  *logger.Logger
	now     func() time.Time
}

// NewEngine creates a scoring engine from a profile (nil → Default())
func NewEngine(profile *strategyconfig.Config, log *logger.Logger) *Engine {
	if profile == nil {
		profile = strategyconfig.Default()
	}
	return &Engine{
		weights: profile.Weights,
		targets: profile.Targets,
		logger:  log.WithModule("scoring"),
		now:     time.Now,
	}
}

// Compose assembles the result field by field
func (e *Engine) Compose(snap *contracts.Snapshot, ind contracts.IndicatorSet, p analyzers.Partials, kind contracts.AnalysisKind) *contracts.CompositeResult {
	scores := contracts.SubScores{
		Fundamental: round1(p.Fundamental.Score),
		Technical:   round1(p.Technical.Score),
		Sentiment:   round1(p.Sentiment.Score),
		Market:      round1(p.Market.Score),
		Industry:    round1(p.Industry.Score),
	}

	rating := e.Rating(scores)
	price := snap.CurrentPrice()
	trend := p.MarketDetails.TrendStrength
	volatility := p.MarketDetails.Volatility

	r := &contracts.CompositeResult{
		Symbol:          snap.Instrument.Symbol,
		Kind:            kind,
		OverallRating:   rating,
		Recommendation:  contracts.RecommendationFor(rating),
		RiskLevel:       contracts.RiskLevelFor(rating),
		ConfidenceLevel: e.Confidence(p),
		Scores:          scores,
		Metrics: contracts.Metrics{
			RSI:           round2(ind.RSI),
			MACD:          round2(ind.MACD),
			MACDSignal:    round2(ind.MACDSignal),
			Volatility:    volatility,
			TrendStrength: trend,
			ROE:           p.FundamentalDetails.ROE,
			PE:            p.FundamentalDetails.PE,
			PB:            p.FundamentalDetails.PB,
			PositiveNews:  p.SentimentDetails.Positive,
			NegativeNews:  p.SentimentDetails.Negative,
			NewsCount:     p.SentimentDetails.Total,
		},
		GeneratedAt: e.now(),
	}

	e.applyPrices(r, price, trend, volatility)
	r.Explanation = Explain(r, p, snap.Stale)

	e.logger.WithFields(map[string]interface{}{
		"symbol":         r.Symbol,
		"rating":         r.OverallRating,
		"recommendation": r.Recommendation,
		"confidence":     r.ConfidenceLevel,
	}).Debug("Composed result")

	return r
}

// Rating = Σ weight·score / 10, rounded to one decimal, clamped to [1, 10]
func (e *Engine) Rating(s contracts.SubScores) float64 {
	w := e.weights
	sum := w.Fundamental*s.Fundamental +
		w.Technical*s.Technical +
		w.Sentiment*s.Sentiment +
		w.Market*s.Market +
		w.Industry*s.Industry
	return clamp(round1(sum/10), 1, 10)
}

// Confidence is the weighted mean of analyzer confidences
func (e *Engine) Confidence(p analyzers.Partials) int {
	w := e.weights
	total := w.Sum()
	if total == 0 {
		return 50
	}
	sum := w.Fundamental*float64(p.Fundamental.Confidence) +
		w.Technical*float64(p.Technical.Confidence) +
		w.Sentiment*float64(p.Sentiment.Confidence) +
		w.Market*float64(p.Market.Confidence) +
		w.Industry*float64(p.Industry.Confidence)
	return int(math.Round(clamp(sum/total, 0, 100)))
}

// TargetGain = base + slope·(rating−5) + bonus·trend, clamped
func (e *Engine) TargetGain(rating, trend float64) float64 {
	t := e.targets
	gain := t.BaseGain + t.RatingSlope*(rating-5) + t.TrendBonus*trend
	return clamp(gain, t.MinGain, t.MaxGain)
}

// StopPct is the rating-tier stop inflated by daily volatility, clamped
func (e *Engine) StopPct(rating, volatility float64) float64 {
	t := e.targets
	var base float64
	switch {
	case rating >= 7.0:
		base = t.StopBuy
	case rating >= 5.5:
		base = t.StopHold
	default:
		base = t.StopWeak
	}
	return clamp(base+t.VolatilityMult*volatility, t.MinStop, t.MaxStop)
}

// applyPrices sets target/stop and recomputes upside/downside from the rounded prices
func (e *Engine) applyPrices(r *contracts.CompositeResult, price, trend, volatility float64) {
	r.CurrentPrice = roundCents(price)
	if r.CurrentPrice <= 0 {
		return
	}
	r.TargetPrice = roundCents(r.CurrentPrice * (1 + e.TargetGain(r.OverallRating, trend)))
	r.StopLossPrice = roundCents(r.CurrentPrice * (1 - e.StopPct(r.OverallRating, volatility)))
	r.UpsidePotential, r.DownsideRisk = UpsideDownside(r.CurrentPrice, r.TargetPrice, r.StopLossPrice)
}

// UpsideDownside derives the percentages from prices only
// ⭐ SSOT: upside/downside는 가격에서만 계산
func UpsideDownside(current, target, stop float64) (upside, downside float64) {
	if current <= 0 {
		return 0, 0
	}
	upside = math.Round((target - current) / current * 100)
	downside = math.Round((current - stop) / current * 100)
	return upside, downside
}

// Fallback returns the neutral report used when instrument data is missing
func (e *Engine) Fallback(symbol string, price float64, kind contracts.AnalysisKind, reason string) *contracts.CompositeResult {
	// 중립 결과는 등급표 예외: 5.0 / hold / medium 고정, Fallback 플래그로 구분
	r := &contracts.CompositeResult{
		Symbol:          symbol,
		Kind:            kind,
		OverallRating:   5.0,
		Recommendation:  contracts.Hold,
		RiskLevel:       contracts.RiskMedium,
		ConfidenceLevel: 50,
		Scores: contracts.SubScores{
			Fundamental: 50, Technical: 50, Sentiment: 50, Market: 50, Industry: 50,
		},
		Fallback:    true,
		GeneratedAt: e.now(),
	}

	e.applyPrices(r, price, 0, 0)
	r.Explanation = contracts.Explanation{
		Reasoning:         "Insufficient market data; neutral placeholder assessment. " + reason,
		KeyFactors:        []string{"data unavailable"},
		ConfidenceFactors: []string{"fallback result, not derived from instrument data"},
		RiskFactors:       []string{"assessment not based on current data"},
	}

	e.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"reason": reason,
	}).Warn("Returned fallback result")

	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func roundCents(v float64) float64 { return math.Round(v*100) / 100 }
