package selection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/strategyconfig"
	"github.com/wonny/alphalens/pkg/logger"
)

// 진단 임계값
const (
	strongFundamental = 80.0
	weakFundamental   = 50.0
	strongTechnical   = 70.0
	weakTechnical     = 40.0
	strongUpside      = 25.0
	weakUpside        = 5.0
	highConfidence    = 80
	lowConfidence     = 60
	warnConfidence    = 70
	rsiHealthyLow     = 40.0
	rsiHealthyHigh    = 60.0
	rsiOverbought     = 70.0
	rsiOversold       = 30.0
	strongROE         = 15.0
	weakROE           = 5.0
	warnDownside      = 25.0
)

// Diagnosis is the qualitative report for one instrument
type Diagnosis struct {
	Symbol         string                     `json:"symbol"`
	Summary        string                     `json:"summary"`
	Rating         float64                    `json:"rating"`
	Recommendation contracts.Recommendation   `json:"recommendation"`
	RiskLevel      contracts.RiskLevel        `json:"risk_level"`
	Confidence     int                        `json:"confidence"`
	Strengths      []string                   `json:"strengths"`
	Weaknesses     []string                   `json:"weaknesses"`
	Advice         []string                   `json:"advice"`
	Warnings       []string                   `json:"warnings"`
	Result         *contracts.CompositeResult `json:"result"`
}

// Diagnoser produces diagnoses from fresh composite results
type Diagnoser struct {
	resolver
	maxAge time.Duration
}

// NewDiagnoser creates a new diagnoser
func NewDiagnoser(orch Orchestrator, screening strategyconfig.Screening, opts Options, log *logger.Logger) *Diagnoser {
	def := DefaultOptions()
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = def.WaitTimeout
	}
	if opts.RequesterID == "" {
		opts.RequesterID = def.RequesterID
	}
	return &Diagnoser{
		resolver: resolver{
			orch:   orch,
			opts:   opts,
			logger: log.WithModule("diagnoser"),
			now:    time.Now,
		},
		maxAge: screening.DiagnoseFreshness(),
	}
}

// Diagnose returns the report for symbol, generating a result older than a day
func (d *Diagnoser) Diagnose(ctx context.Context, symbol string) (*Diagnosis, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", contracts.ErrInvalidArgument)
	}

	result, err := d.obtain(ctx, symbol, d.maxAge)
	if err != nil {
		return nil, err
	}

	diag := Diagnose(result)
	d.logger.WithFields(map[string]interface{}{
		"symbol":     symbol,
		"rating":     diag.Rating,
		"strengths":  len(diag.Strengths),
		"weaknesses": len(diag.Weaknesses),
		"warnings":   len(diag.Warnings),
	}).Info("Diagnosis generated")

	return diag, nil
}

// Diagnose builds the report from one composite result
func Diagnose(r *contracts.CompositeResult) *Diagnosis {
	d := &Diagnosis{
		Symbol:         r.Symbol,
		Summary:        summary(r),
		Rating:         r.OverallRating,
		Recommendation: r.Recommendation,
		RiskLevel:      r.RiskLevel,
		Confidence:     r.ConfidenceLevel,
		Strengths:      strengths(r),
		Weaknesses:     weaknesses(r),
		Advice:         advice(r),
		Warnings:       warnings(r),
		Result:         r,
	}

	if len(d.Strengths) == 0 {
		d.Strengths = []string{"No standout strengths in the current data"}
	}
	if len(d.Weaknesses) == 0 {
		d.Weaknesses = []string{"No notable weaknesses in the current data"}
	}
	if len(d.Warnings) == 0 {
		d.Warnings = []string{"No specific risk warnings"}
	}
	return d
}

func summary(r *contracts.CompositeResult) string {
	switch {
	case r.OverallRating >= 8.5:
		return fmt.Sprintf("%s shows an excellent overall profile (rating %.1f/10)", r.Symbol, r.OverallRating)
	case r.OverallRating >= 7.0:
		return fmt.Sprintf("%s shows a solid overall profile (rating %.1f/10)", r.Symbol, r.OverallRating)
	case r.OverallRating >= 5.5:
		return fmt.Sprintf("%s shows a balanced profile with mixed signals (rating %.1f/10)", r.Symbol, r.OverallRating)
	case r.OverallRating >= 4.0:
		return fmt.Sprintf("%s shows a weak profile (rating %.1f/10)", r.Symbol, r.OverallRating)
	default:
		return fmt.Sprintf("%s shows a poor profile (rating %.1f/10)", r.Symbol, r.OverallRating)
	}
}

func strengths(r *contracts.CompositeResult) []string {
	var out []string
	if r.Scores.Fundamental >= strongFundamental {
		out = append(out, fmt.Sprintf("Strong fundamentals (score %.0f)", r.Scores.Fundamental))
	}
	if r.Scores.Technical >= strongTechnical {
		out = append(out, fmt.Sprintf("Favourable technical setup (score %.0f)", r.Scores.Technical))
	}
	if r.UpsidePotential >= strongUpside {
		out = append(out, fmt.Sprintf("Large upside potential (%.0f%%)", r.UpsidePotential))
	}
	if r.ConfidenceLevel >= highConfidence {
		out = append(out, fmt.Sprintf("High analysis confidence (%d%%)", r.ConfidenceLevel))
	}
	// 중립 결과의 지표는 계산되지 않음
	if !r.Fallback && r.Metrics.RSI >= rsiHealthyLow && r.Metrics.RSI <= rsiHealthyHigh {
		out = append(out, fmt.Sprintf("RSI in a healthy range (%.1f)", r.Metrics.RSI))
	}
	if r.Metrics.ROE != nil && *r.Metrics.ROE >= strongROE {
		out = append(out, fmt.Sprintf("High return on equity (%.1f%%)", *r.Metrics.ROE))
	}
	return out
}

func weaknesses(r *contracts.CompositeResult) []string {
	var out []string
	if r.Scores.Fundamental < weakFundamental {
		out = append(out, fmt.Sprintf("Weak fundamentals (score %.0f)", r.Scores.Fundamental))
	}
	if r.Scores.Technical < weakTechnical {
		out = append(out, fmt.Sprintf("Poor technical setup (score %.0f)", r.Scores.Technical))
	}
	if r.UpsidePotential < weakUpside {
		out = append(out, fmt.Sprintf("Limited upside potential (%.0f%%)", r.UpsidePotential))
	}
	if r.ConfidenceLevel < lowConfidence {
		out = append(out, fmt.Sprintf("Low analysis confidence (%d%%)", r.ConfidenceLevel))
	}
	if !r.Fallback {
		switch {
		case r.Metrics.RSI > rsiOverbought:
			out = append(out, fmt.Sprintf("RSI overbought (%.1f)", r.Metrics.RSI))
		case r.Metrics.RSI < rsiOversold:
			out = append(out, fmt.Sprintf("RSI oversold (%.1f)", r.Metrics.RSI))
		}
	}
	if r.Metrics.ROE != nil && *r.Metrics.ROE < weakROE {
		out = append(out, fmt.Sprintf("Low return on equity (%.1f%%)", *r.Metrics.ROE))
	}
	return out
}

func advice(r *contracts.CompositeResult) []string {
	target := fmt.Sprintf("Target price %.2f (%+.0f%%)", r.TargetPrice, r.UpsidePotential)
	stop := fmt.Sprintf("Stop loss at %.2f (-%.0f%%)", r.StopLossPrice, r.DownsideRisk)

	switch r.Recommendation {
	case contracts.StrongBuy:
		return []string{"Consider building a position", target, stop, "Scale in rather than buying at once"}
	case contracts.Buy:
		return []string{"Consider a moderate position", target, stop}
	case contracts.Hold:
		return []string{"Hold existing positions and wait for a clearer signal", stop}
	case contracts.Sell:
		return []string{"Consider reducing exposure", "Avoid adding new positions"}
	default:
		return []string{"Consider exiting the position", "Avoid new positions until the outlook improves"}
	}
}

func warnings(r *contracts.CompositeResult) []string {
	var out []string
	if r.RiskLevel.Rank() >= contracts.RiskHigh.Rank() {
		out = append(out, fmt.Sprintf("Risk level is %s", strings.ReplaceAll(string(r.RiskLevel), "_", " ")))
	}
	if r.DownsideRisk >= warnDownside {
		out = append(out, fmt.Sprintf("Downside risk is large (%.0f%%)", r.DownsideRisk))
	}
	if r.ConfidenceLevel < warnConfidence {
		out = append(out, fmt.Sprintf("Analysis confidence is low (%d%%); treat the result with caution", r.ConfidenceLevel))
	}
	if r.Fallback {
		out = append(out, "Market data was unavailable; this is a neutral placeholder result")
	}
	return out
}
