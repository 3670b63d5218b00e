package analyzers

import (
	"context"
	"fmt"
	"math"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/indicators"
	"github.com/wonny/alphalens/pkg/logger"
)

// Component weights (sum 1.0)
const (
	weightRSI       = 0.30
	weightMACD      = 0.25
	weightCrossover = 0.20
	weightVolume    = 0.15
	weightBollinger = 0.10

	technicalInputs = 5
)

// TechnicalDetails are the component scores in [0, 1]
type TechnicalDetails struct {
	RSIScore       float64
	MACDScore      float64
	CrossoverScore float64
	VolumeScore    float64
	BollingerScore float64
	VolumeRatio    float64
}

// TechnicalAnalyzer blends indicator components into one score
// ⭐ SSOT: 기술적 점수 계산은 여기서만
type TechnicalAnalyzer struct {
	logger *logger.Logger
}

// NewTechnicalAnalyzer creates a new technical analyzer
func NewTechnicalAnalyzer(log *logger.Logger) *TechnicalAnalyzer {
	return &TechnicalAnalyzer{logger: log}
}

// Analyze scores RSI 30%, MACD 25%, SMA50/200 20%, volume 15%, Bollinger 10%
func (a *TechnicalAnalyzer) Analyze(ctx context.Context, symbol string, bars []contracts.Bar, ind contracts.IndicatorSet) (Partial, TechnicalDetails) {
	d := TechnicalDetails{
		RSIScore:       RSIComponent(ind.RSI),
		MACDScore:      MACDComponent(ind.MACD, ind.MACDSignal),
		CrossoverScore: 0.5,
		VolumeScore:    0.5,
		BollingerScore: BollingerComponent(ind.PercentB),
	}

	n := len(bars)
	present := 0
	var factors, risks []string

	if n >= indicators.RSIPeriod+1 {
		present++
		switch {
		case ind.RSI > 70:
			risks = append(risks, fmt.Sprintf("overbought (RSI %.0f)", ind.RSI))
		case ind.RSI < 30:
			factors = append(factors, fmt.Sprintf("oversold (RSI %.0f)", ind.RSI))
		}
	}

	if n >= indicators.MACDSlow {
		present++
		if ind.MACD > ind.MACDSignal {
			factors = append(factors, "MACD above signal line")
		} else if ind.MACD < ind.MACDSignal {
			risks = append(risks, "MACD below signal line")
		}
	}

	// SMA200이 없으면 교차 판단 불가 → 중립
	if n >= 200 {
		present++
		d.CrossoverScore = CrossoverComponent(ind.MA50, ind.MA200)
		if ind.MA50 > ind.MA200 {
			factors = append(factors, "SMA50 above SMA200")
		} else if ind.MA50 < ind.MA200 {
			risks = append(risks, "SMA50 below SMA200")
		}
	}

	if n >= 2 && ind.AvgVolume20 > 0 {
		present++
		d.VolumeRatio = float64(bars[n-1].Volume) / ind.AvgVolume20
		priceUp := bars[n-1].Close >= bars[n-2].Close
		d.VolumeScore = VolumeComponent(d.VolumeRatio, priceUp)
		if d.VolumeRatio > 1.5 && priceUp {
			factors = append(factors, fmt.Sprintf("accumulation on %.1fx volume", d.VolumeRatio))
		} else if d.VolumeRatio > 1.5 {
			risks = append(risks, fmt.Sprintf("distribution on %.1fx volume", d.VolumeRatio))
		}
	}

	if n >= indicators.BollingerPeriod {
		present++
	}

	score := 100 * (d.RSIScore*weightRSI +
		d.MACDScore*weightMACD +
		d.CrossoverScore*weightCrossover +
		d.VolumeScore*weightVolume +
		d.BollingerScore*weightBollinger)

	p := newPartial(score, present, technicalInputs)
	p.Factors = factors
	p.Risks = risks

	a.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"rsi":    ind.RSI,
		"macd":   ind.MACD,
		"bars":   n,
		"score":  p.Score,
	}).Debug("Calculated technical score")

	return p, d
}

// RSIComponent: >70 → 0.3, <30 → 0.9, otherwise graded by distance from 50
func RSIComponent(rsi float64) float64 {
	switch {
	case rsi > 70:
		return 0.3
	case rsi < 30:
		return 0.9
	default:
		return 0.7 - math.Abs(rsi-50)/100
	}
}

// MACDComponent scores MACD relative to its signal line
func MACDComponent(macd, signal float64) float64 {
	switch {
	case macd > signal && macd > 0:
		return 0.8
	case macd > signal:
		return 0.65
	case macd < signal && macd < 0:
		return 0.2
	case macd < signal:
		return 0.35
	default:
		return 0.5
	}
}

// CrossoverComponent scores SMA50 against SMA200
func CrossoverComponent(sma50, sma200 float64) float64 {
	switch {
	case sma50 > sma200:
		return 0.8
	case sma50 < sma200:
		return 0.2
	default:
		return 0.5
	}
}

// VolumeComponent scores today's volume against the 20-day average
func VolumeComponent(ratio float64, priceUp bool) float64 {
	switch {
	case ratio > 1.5 && priceUp:
		return 0.8
	case ratio > 1.5:
		return 0.3
	case ratio < 0.5:
		return 0.4
	default:
		return 0.5
	}
}

// BollingerComponent scores the %B position inside the band
func BollingerComponent(percentB float64) float64 {
	switch {
	case percentB < 0.2:
		return 0.8
	case percentB > 0.8:
		return 0.3
	default:
		return 0.5
	}
}
