package analyzers

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

const (
	marketInputs   = 3
	industryInputs = 3
)

// MarketDetails are the resolved market inputs
type MarketDetails struct {
	TrendStrength  float64 // -1 ~ 1
	RelativeVolume float64
	Volatility     float64
	Derived        bool // 제공자 context 없이 bars에서 계산
}

// MarketAnalyzer scores market and industry context
// ⭐ SSOT: 시장/업종 점수 계산은 여기서만
type MarketAnalyzer struct {
	logger *logger.Logger
}

// NewMarketAnalyzer creates a new market analyzer
func NewMarketAnalyzer(log *logger.Logger) *MarketAnalyzer {
	return &MarketAnalyzer{logger: log}
}

// Analyze returns the market partial, the industry partial and the inputs used
func (a *MarketAnalyzer) Analyze(ctx context.Context, symbol string, mc *contracts.MarketContext, bars []contracts.Bar, ind contracts.IndicatorSet) (Partial, Partial, MarketDetails) {
	if mc == nil {
		mc = &contracts.MarketContext{}
	}

	d, present := resolveMarketInputs(mc, bars, ind)
	market := scoreMarket(d, present)
	industry := scoreIndustry(mc)

	a.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"trend":    d.TrendStrength,
		"rel_vol":  d.RelativeVolume,
		"vol":      d.Volatility,
		"market":   market.Score,
		"industry": industry.Score,
	}).Debug("Calculated market score")

	return market, industry, d
}

// resolveMarketInputs prefers provider values and falls back to bar-derived ones
func resolveMarketInputs(mc *contracts.MarketContext, bars []contracts.Bar, ind contracts.IndicatorSet) (MarketDetails, int) {
	d := MarketDetails{RelativeVolume: 1}
	present := 0
	n := len(bars)

	switch {
	case mc.TrendDirection != nil:
		d.TrendStrength = math.Max(-1, math.Min(1, *mc.TrendDirection))
		present++
	case n >= 20:
		d.TrendStrength = deriveTrend(bars[n-1].Close, ind)
		d.Derived = true
		present++
	}

	switch {
	case mc.RelativeVolume != nil:
		d.RelativeVolume = *mc.RelativeVolume
		present++
	case n >= 2 && ind.AvgVolume20 > 0:
		d.RelativeVolume = float64(bars[n-1].Volume) / ind.AvgVolume20
		d.Derived = true
		present++
	}

	switch {
	case mc.Volatility != nil:
		d.Volatility = *mc.Volatility
		present++
	case n >= 3:
		d.Volatility = ind.Volatility
		d.Derived = true
		present++
	}

	return d, present
}

// deriveTrend maps the MA20/MA60 spread (or price/MA20 when short) onto [-1, 1]
func deriveTrend(price float64, ind contracts.IndicatorSet) float64 {
	var spread float64
	switch {
	case ind.Bars >= 60 && ind.MA60 > 0:
		spread = ind.MA20/ind.MA60 - 1
	case ind.MA20 > 0:
		spread = price/ind.MA20 - 1
	}
	return math.Max(-1, math.Min(1, spread*10))
}

func scoreMarket(d MarketDetails, present int) Partial {
	score := 50.0
	var factors, risks []string

	switch {
	case d.TrendStrength > 0.2:
		score += 15
		factors = append(factors, "uptrend")
	case d.TrendStrength < -0.2:
		score -= 15
		risks = append(risks, "downtrend")
	}

	switch {
	case d.RelativeVolume > 1.2:
		score += 5
	case d.RelativeVolume < 0.8:
		score -= 5
	}

	switch {
	case d.Volatility > 0.03:
		score -= 10
		risks = append(risks, fmt.Sprintf("high volatility %.1f%%/day", d.Volatility*100))
	case d.Volatility > 0 && d.Volatility < 0.015:
		score += 5
		factors = append(factors, "low volatility")
	}

	p := newPartial(score, present, marketInputs)
	p.Factors = factors
	p.Risks = risks
	return p
}

func scoreIndustry(mc *contracts.MarketContext) Partial {
	score := 50.0
	present := 0
	var factors, risks []string

	if mc.IndustryGrowth != nil {
		present++
		g := *mc.IndustryGrowth
		switch {
		case g > 10:
			score += 15
			factors = append(factors, fmt.Sprintf("industry growing %.1f%%", g))
		case g > 5:
			score += 8
		case g < 0:
			score -= 10
			risks = append(risks, "industry contracting")
		}
	}

	if mc.IndustryRank != nil {
		present++
		rank := *mc.IndustryRank
		if mc.IndustrySize != nil && *mc.IndustrySize > 0 {
			pos := float64(rank) / float64(*mc.IndustrySize)
			switch {
			case pos <= 0.2:
				score += 10
				factors = append(factors, fmt.Sprintf("industry leader (#%d)", rank))
			case pos >= 0.8:
				score -= 10
				risks = append(risks, "industry laggard")
			}
		} else if rank > 0 && rank <= 3 {
			score += 10
			factors = append(factors, fmt.Sprintf("industry leader (#%d)", rank))
		}
	}

	if mc.MarketShare != nil {
		present++
		switch share := *mc.MarketShare; {
		case share > 20:
			score += 10
			factors = append(factors, fmt.Sprintf("market share %.0f%%", share))
		case share > 10:
			score += 5
		}
	}

	p := newPartial(score, present, industryInputs)
	p.Factors = factors
	p.Risks = risks
	return p
}
