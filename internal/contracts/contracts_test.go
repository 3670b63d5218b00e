package contracts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationAndRiskFor(t *testing.T) {
	tests := []struct {
		rating   float64
		wantRec  Recommendation
		wantRisk RiskLevel
	}{
		{10.0, StrongBuy, RiskVeryLow},
		{8.7, StrongBuy, RiskVeryLow},
		{8.5, StrongBuy, RiskVeryLow},
		{8.4, Buy, RiskLow},
		{7.0, Buy, RiskLow},
		{6.9, Hold, RiskMedium},
		{5.5, Hold, RiskMedium},
		{5.4, Sell, RiskHigh},
		{4.0, Sell, RiskHigh},
		{3.9, StrongSell, RiskVeryHigh},
		{1.0, StrongSell, RiskVeryHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantRec, RecommendationFor(tt.rating), "rating %.1f", tt.rating)
		assert.Equal(t, tt.wantRisk, RiskLevelFor(tt.rating), "rating %.1f", tt.rating)
	}
}

func TestRiskLevel_Rank(t *testing.T) {
	assert.Less(t, RiskVeryLow.Rank(), RiskLow.Rank())
	assert.Less(t, RiskLow.Rank(), RiskMedium.Rank())
	assert.Less(t, RiskMedium.Rank(), RiskHigh.Rank())
	assert.Less(t, RiskHigh.Rank(), RiskVeryHigh.Rank())
	assert.Equal(t, 0, RiskLevel("extreme").Rank())

	_, err := ParseRiskLevel("extreme")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTaskState_Transitions(t *testing.T) {
	tests := []struct {
		from TaskState
		to   TaskState
		want bool
	}{
		{StatePending, StateProcessing, true},
		{StatePending, StateCancelled, true},
		{StatePending, StateCompleted, false},
		{StateProcessing, StateCompleted, true},
		{StateProcessing, StateFailed, true},
		{StateProcessing, StateCancelled, true},
		{StateProcessing, StatePending, false},
		{StateCompleted, StateCancelled, false},
		{StateFailed, StateProcessing, false},
		{StateCancelled, StateProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateProcessing.IsTerminal())
}

func TestScreeningCriteria_Matches(t *testing.T) {
	base := CompositeResult{
		OverallRating:   7.2,
		ConfidenceLevel: 75,
		RiskLevel:       RiskLow,
		UpsidePotential: 18,
		Scores:          SubScores{Fundamental: 70, Technical: 60},
	}

	tests := []struct {
		name     string
		criteria ScreeningCriteria
		want     bool
	}{
		{"no criteria", NoCriteria(), true},
		{"zero value", ScreeningCriteria{MinUpside: -100}, true},
		{"rating too low", ScreeningCriteria{MinRating: 7.5, MaxRiskLevel: RiskVeryHigh, MinUpside: -100}, false},
		{"confidence too low", ScreeningCriteria{MinConfidence: 80, MaxRiskLevel: RiskVeryHigh, MinUpside: -100}, false},
		{"risk above max", ScreeningCriteria{MaxRiskLevel: RiskVeryLow, MinUpside: -100}, false},
		{"risk equal max", ScreeningCriteria{MaxRiskLevel: RiskLow, MinUpside: -100}, true},
		{"fundamental too low", ScreeningCriteria{MinFundamentalScore: 71, MaxRiskLevel: RiskVeryHigh, MinUpside: -100}, false},
		{"technical too low", ScreeningCriteria{MinTechnicalScore: 61, MaxRiskLevel: RiskVeryHigh, MinUpside: -100}, false},
		{"upside too low", ScreeningCriteria{MinUpside: 20, MaxRiskLevel: RiskVeryHigh}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			assert.Equal(t, tt.want, tt.criteria.Matches(&r))
		})
	}
}

func TestTimeRange_Days(t *testing.T) {
	days, err := Range6M.Days()
	require.NoError(t, err)
	assert.Equal(t, 180, days)

	_, err = TimeRange("5y").Days()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSnapshot_CurrentPrice(t *testing.T) {
	s := Snapshot{Instrument: Instrument{Bars: []Bar{{Close: 99}, {Close: 101}}}}
	assert.Equal(t, 101.0, s.CurrentPrice())

	s.Instrument.LatestPrice = 102
	assert.Equal(t, 102.0, s.CurrentPrice())

	s.Quote = &Quote{Price: 103}
	assert.Equal(t, 103.0, s.CurrentPrice())
}

func TestAnalysisTask_CloneIsIndependent(t *testing.T) {
	task := &AnalysisTask{ID: "t-1", State: StatePending}
	c := task.Clone()
	c.State = StateCancelled
	assert.Equal(t, StatePending, task.State)
}

func TestCompositeResult_JSON(t *testing.T) {
	r := CompositeResult{
		Symbol:         "005930",
		Kind:           KindComprehensive,
		OverallRating:  6.1,
		Recommendation: Hold,
		RiskLevel:      RiskMedium,
		Metrics:        Metrics{ROE: Float(12.5)},
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"recommendation":"hold"`)
	assert.Contains(t, string(data), `"roe":12.5`)
	assert.NotContains(t, string(data), `"pe"`)
}
