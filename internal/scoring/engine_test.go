package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/strategyconfig"
	"github.com/wonny/alphalens/pkg/logger"
)

func newEngine() *Engine {
	e := NewEngine(nil, logger.NewNop())
	e.now = func() time.Time { return time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC) }
	return e
}

func partials(f, t, s, m, i float64, conf int) analyzers.Partials {
	mk := func(score float64) analyzers.Partial {
		return analyzers.Partial{Score: score, Confidence: conf, Recommendation: contracts.RecommendationFor(score / 10)}
	}
	return analyzers.Partials{
		Fundamental: mk(f), Technical: mk(t), Sentiment: mk(s), Market: mk(m), Industry: mk(i),
	}
}

func snapshot(price float64) *contracts.Snapshot {
	return &contracts.Snapshot{
		Instrument: contracts.Instrument{Symbol: "005930"},
		Quote:      &contracts.Quote{Symbol: "005930", Price: price},
	}
}

func TestRating(t *testing.T) {
	e := newEngine()

	tests := []struct {
		name   string
		scores contracts.SubScores
		want   float64
	}{
		{"all 87", contracts.SubScores{Fundamental: 87, Technical: 87, Sentiment: 87, Market: 87, Industry: 87}, 8.7},
		{"weighted", contracts.SubScores{Fundamental: 80, Technical: 60, Sentiment: 50, Market: 40, Industry: 30}, 5.8}, // 24+15+10+6+3
		{"all zero clamps to 1", contracts.SubScores{}, 1.0},
		{"all 100", contracts.SubScores{Fundamental: 100, Technical: 100, Sentiment: 100, Market: 100, Industry: 100}, 10.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Rating(tt.scores))
		})
	}
}

func TestCompose_RatingDrivesCategories(t *testing.T) {
	e := newEngine()

	r := e.Compose(snapshot(100), contracts.IndicatorSet{}, partials(87, 87, 87, 87, 87, 80), contracts.KindComprehensive)
	assert.Equal(t, 8.7, r.OverallRating)
	assert.Equal(t, contracts.StrongBuy, r.Recommendation)
	assert.Equal(t, contracts.RiskVeryLow, r.RiskLevel)
	assert.Equal(t, 80, r.ConfidenceLevel)
	assert.Equal(t, contracts.KindComprehensive, r.Kind)
	assert.False(t, r.Fallback)
}

func TestCompose_Properties(t *testing.T) {
	e := newEngine()

	for score := 0.0; score <= 100; score += 7 {
		for _, price := range []float64{0.37, 13.13, 999.99, 72100} {
			for _, vol := range []float64{0, 0.012, 0.05, 0.3} {
				p := partials(score, 100-score, score, 50, score/2, 60)
				p.MarketDetails = analyzers.MarketDetails{TrendStrength: (score - 50) / 50, Volatility: vol}

				r := e.Compose(snapshot(price), contracts.IndicatorSet{}, p, contracts.KindComprehensive)

				require.GreaterOrEqual(t, r.OverallRating, 1.0)
				require.LessOrEqual(t, r.OverallRating, 10.0)
				assert.Equal(t, contracts.RecommendationFor(r.OverallRating), r.Recommendation)
				assert.Equal(t, contracts.RiskLevelFor(r.OverallRating), r.RiskLevel)

				up := math.Round((r.TargetPrice - r.CurrentPrice) / r.CurrentPrice * 100)
				down := math.Round((r.CurrentPrice - r.StopLossPrice) / r.CurrentPrice * 100)
				assert.Equal(t, up, r.UpsidePotential, "price %.2f score %.0f", price, score)
				assert.Equal(t, down, r.DownsideRisk, "price %.2f score %.0f", price, score)

				assert.GreaterOrEqual(t, r.ConfidenceLevel, 0)
				assert.LessOrEqual(t, r.ConfidenceLevel, 100)
			}
		}
	}
}

func TestTargetGainAndStop(t *testing.T) {
	e := newEngine()

	assert.InDelta(t, 0.10, e.TargetGain(5, 0), 1e-9)
	assert.InDelta(t, 0.32, e.TargetGain(9, 0.4), 1e-9) // 0.10 + 0.20 + 0.02
	assert.InDelta(t, 0.50, e.TargetGain(10, 10), 1e-9)
	assert.InDelta(t, -0.15, e.TargetGain(1, -1), 1e-9)

	assert.InDelta(t, 0.08, e.StopPct(7.5, 0), 1e-9)
	assert.InDelta(t, 0.12, e.StopPct(6, 0), 1e-9)
	assert.InDelta(t, 0.15, e.StopPct(3, 0), 1e-9)
	assert.InDelta(t, 0.10, e.StopPct(8, 0.01), 1e-9)
	assert.InDelta(t, 0.25, e.StopPct(3, 0.2), 1e-9)
}

func TestCompose_Prices(t *testing.T) {
	e := newEngine()
	p := partials(70, 70, 70, 70, 70, 70)
	p.MarketDetails.Volatility = 0.02

	r := e.Compose(snapshot(50000), contracts.IndicatorSet{}, p, contracts.KindTechnical)
	// rating 7.0 → gain 0.20, stop 0.08+0.04
	assert.Equal(t, 7.0, r.OverallRating)
	assert.Equal(t, 60000.0, r.TargetPrice)
	assert.Equal(t, 44000.0, r.StopLossPrice)
	assert.Equal(t, 20.0, r.UpsidePotential)
	assert.Equal(t, 12.0, r.DownsideRisk)
}

func TestCompose_NoPrice(t *testing.T) {
	e := newEngine()
	r := e.Compose(&contracts.Snapshot{Instrument: contracts.Instrument{Symbol: "X"}}, contracts.IndicatorSet{}, partials(50, 50, 50, 50, 50, 30), contracts.KindSentiment)
	assert.Zero(t, r.TargetPrice)
	assert.Zero(t, r.UpsidePotential)
	assert.Zero(t, r.DownsideRisk)
}

func TestFallback(t *testing.T) {
	e := newEngine()
	r := e.Fallback("005930", 70000, contracts.KindComprehensive, "provider down")

	assert.Equal(t, 5.0, r.OverallRating)
	assert.Equal(t, contracts.Hold, r.Recommendation)
	assert.Equal(t, contracts.RiskMedium, r.RiskLevel)
	assert.Equal(t, 50, r.ConfidenceLevel)
	assert.True(t, r.Fallback)
	assert.Contains(t, r.Explanation.Reasoning, "provider down")

	up, down := UpsideDownside(r.CurrentPrice, r.TargetPrice, r.StopLossPrice)
	assert.Equal(t, up, r.UpsidePotential)
	assert.Equal(t, down, r.DownsideRisk)
}

func TestCustomProfileWeights(t *testing.T) {
	profile := strategyconfig.Default()
	profile.Weights = strategyconfig.Weights{Fundamental: 1}
	e := NewEngine(profile, logger.NewNop())

	assert.Equal(t, 9.0, e.Rating(contracts.SubScores{Fundamental: 90, Technical: 10}))
}

func TestExplain(t *testing.T) {
	e := newEngine()
	p := partials(85, 40, 60, 55, 50, 70)
	p.Fundamental.Factors = []string{"high ROE 22.0%"}
	p.Technical.Risks = []string{"overbought (RSI 75)"}

	r := e.Compose(snapshot(100), contracts.IndicatorSet{}, p, contracts.KindComprehensive)
	exp := r.Explanation

	assert.Contains(t, exp.Reasoning, "Strongest component is fundamental")
	assert.Contains(t, exp.Reasoning, "weakest is technical")
	assert.Equal(t, []string{"high ROE 22.0%"}, exp.KeyFactors)
	assert.Equal(t, []string{"overbought (RSI 75)"}, exp.RiskFactors)
	assert.Len(t, exp.ConfidenceFactors, 5)

	stale := Explain(r, p, true)
	assert.Contains(t, stale.RiskFactors, "market data served from cache after provider failure")
}
