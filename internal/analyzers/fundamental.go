package analyzers

import (
	"context"
	"fmt"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

const fundamentalInputs = 6

// FundamentalDetails are the ratios that drove the score
type FundamentalDetails struct {
	PE  *float64
	PB  *float64
	ROE *float64
}

// FundamentalAnalyzer scores valuation and quality ratios
// ⭐ SSOT: 재무 비율 점수 계산은 여기서만
type FundamentalAnalyzer struct {
	logger *logger.Logger
}

// NewFundamentalAnalyzer creates a new fundamental analyzer
func NewFundamentalAnalyzer(log *logger.Logger) *FundamentalAnalyzer {
	return &FundamentalAnalyzer{logger: log}
}

// Analyze scores fundamentals from a baseline of 50.
// Missing ratios contribute nothing and lower confidence.
func (a *FundamentalAnalyzer) Analyze(ctx context.Context, symbol string, f *contracts.Fundamentals) (Partial, FundamentalDetails) {
	if f == nil {
		f = &contracts.Fundamentals{}
	}

	score := 50.0
	present := 0
	var factors, risks []string

	// P/E: 적자(≤0) 또는 과열(>40)은 감점
	if f.PE != nil {
		present++
		pe := *f.PE
		switch {
		case pe <= 0:
			score -= 15
			risks = append(risks, "negative earnings (P/E ≤ 0)")
		case pe < 15:
			score += 10
			factors = append(factors, fmt.Sprintf("attractive P/E %.1f", pe))
		case pe <= 25:
			score += 5
		case pe > 40:
			score -= 10
			risks = append(risks, fmt.Sprintf("extreme P/E %.1f", pe))
		}
	}

	if f.PB != nil {
		present++
		pb := *f.PB
		switch {
		case pb > 0 && pb < 1:
			score += 8
			factors = append(factors, fmt.Sprintf("trading below book (P/B %.2f)", pb))
		case pb >= 1 && pb <= 3:
			score += 3
		case pb > 5:
			score -= 5
			risks = append(risks, fmt.Sprintf("rich P/B %.2f", pb))
		}
	}

	if f.PS != nil {
		present++
		ps := *f.PS
		switch {
		case ps > 0 && ps < 2:
			score += 5
		case ps > 10:
			score -= 5
		}
	}

	if f.DividendYield != nil {
		present++
		dy := *f.DividendYield
		switch {
		case dy > 3:
			score += 5
			factors = append(factors, fmt.Sprintf("dividend yield %.1f%%", dy))
		case dy > 1:
			score += 2
		}
	}

	if f.ROE != nil {
		present++
		roe := *f.ROE
		switch {
		case roe >= 20:
			score += 15
			factors = append(factors, fmt.Sprintf("high ROE %.1f%%", roe))
		case roe >= 15:
			score += 10
			factors = append(factors, fmt.Sprintf("solid ROE %.1f%%", roe))
		case roe >= 10:
			score += 5
		case roe < 0:
			score -= 15
			risks = append(risks, fmt.Sprintf("negative ROE %.1f%%", roe))
		case roe < 5:
			score -= 10
			risks = append(risks, fmt.Sprintf("weak ROE %.1f%%", roe))
		}
	}

	if f.DebtToEquity != nil {
		present++
		de := *f.DebtToEquity
		switch {
		case de < 0.5:
			score += 10
			factors = append(factors, "low leverage")
		case de < 1:
			score += 5
		case de > 2:
			score -= 10
			risks = append(risks, fmt.Sprintf("high debt/equity %.2f", de))
		case de > 1.5:
			score -= 5
		}
	}

	p := newPartial(score, present, fundamentalInputs)
	p.Factors = factors
	p.Risks = risks
	if present == 0 {
		p.Risks = append(p.Risks, "no financial ratios available")
	}

	a.logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"score":      p.Score,
		"inputs":     present,
		"confidence": p.Confidence,
	}).Debug("Calculated fundamental score")

	return p, FundamentalDetails{PE: f.PE, PB: f.PB, ROE: f.ROE}
}
