package contracts

import (
	"fmt"
	"time"
)

// Recommendation is the discrete call derived from the overall rating
type Recommendation string

const (
	StrongSell Recommendation = "strong_sell"
	Sell       Recommendation = "sell"
	Hold       Recommendation = "hold"
	Buy        Recommendation = "buy"
	StrongBuy  Recommendation = "strong_buy"
)

// RiskLevel is the risk class derived from the overall rating
type RiskLevel string

const (
	RiskVeryLow  RiskLevel = "very_low"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskVeryHigh RiskLevel = "very_high"
)

var riskRank = map[RiskLevel]int{
	RiskVeryLow:  1,
	RiskLow:      2,
	RiskMedium:   3,
	RiskHigh:     4,
	RiskVeryHigh: 5,
}

// Rank orders risk levels: very_low=1 … very_high=5, unknown=0
func (r RiskLevel) Rank() int {
	return riskRank[r]
}

// ParseRiskLevel validates a risk level string
func ParseRiskLevel(s string) (RiskLevel, error) {
	r := RiskLevel(s)
	if r.Rank() == 0 {
		return "", fmt.Errorf("unknown risk level %q: %w", s, ErrInvalidArgument)
	}
	return r, nil
}

// RecommendationFor maps an overall rating to its recommendation
// ⭐ SSOT: rating → recommendation 매핑은 여기서만
func RecommendationFor(rating float64) Recommendation {
	switch {
	case rating >= 8.5:
		return StrongBuy
	case rating >= 7.0:
		return Buy
	case rating >= 5.5:
		return Hold
	case rating >= 4.0:
		return Sell
	default:
		return StrongSell
	}
}

// RiskLevelFor maps an overall rating to its risk level
// ⭐ SSOT: rating → risk 매핑은 여기서만
func RiskLevelFor(rating float64) RiskLevel {
	switch {
	case rating >= 8.5:
		return RiskVeryLow
	case rating >= 7.0:
		return RiskLow
	case rating >= 5.5:
		return RiskMedium
	case rating >= 4.0:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// SubScores are the five named component scores (0 ~ 100)
type SubScores struct {
	Fundamental float64 `json:"fundamental"`
	Technical   float64 `json:"technical"`
	Sentiment   float64 `json:"sentiment"`
	Market      float64 `json:"market"`
	Industry    float64 `json:"industry"`
}

// Metrics are supporting values surfaced with the result
// nil 필드는 입력 데이터 없음
type Metrics struct {
	RSI           float64  `json:"rsi"`
	MACD          float64  `json:"macd"`
	MACDSignal    float64  `json:"macd_signal"`
	Volatility    float64  `json:"volatility"`
	TrendStrength float64  `json:"trend_strength"` // -1 ~ 1
	ROE           *float64 `json:"roe,omitempty"`
	PE            *float64 `json:"pe,omitempty"`
	PB            *float64 `json:"pb,omitempty"`
	PositiveNews  int      `json:"positive_news"`
	NegativeNews  int      `json:"negative_news"`
	NewsCount     int      `json:"news_count"`
}

// Explanation is the structured narrative of a result
type Explanation struct {
	Reasoning         string   `json:"reasoning"`
	KeyFactors        []string `json:"key_factors"`
	ConfidenceFactors []string `json:"confidence_factors"`
	RiskFactors       []string `json:"risk_factors"`
}

// CompositeResult is the merged scoring output of one task
// ⭐ SSOT: Recommendation/RiskLevel은 OverallRating의 함수 (독립 설정 금지)
type CompositeResult struct {
	Symbol          string         `json:"symbol"`
	Kind            AnalysisKind   `json:"kind"`
	OverallRating   float64        `json:"overall_rating"` // 1.0 ~ 10.0
	Recommendation  Recommendation `json:"recommendation"`
	ConfidenceLevel int            `json:"confidence_level"` // 0 ~ 100
	RiskLevel       RiskLevel      `json:"risk_level"`

	CurrentPrice    float64 `json:"current_price"`
	TargetPrice     float64 `json:"target_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
	UpsidePotential float64 `json:"upside_potential"` // %
	DownsideRisk    float64 `json:"downside_risk"`    // %

	Scores      SubScores   `json:"scores"`
	Metrics     Metrics     `json:"metrics"`
	Explanation Explanation `json:"explanation"`

	Fallback    bool      `json:"fallback"` // 데이터 부족 중립 결과
	GeneratedAt time.Time `json:"generated_at"`
}

// ScreeningCriteria are minimum thresholds for selection
type ScreeningCriteria struct {
	MinRating           float64   `json:"min_rating"`
	MinConfidence       int       `json:"min_confidence"`
	MaxRiskLevel        RiskLevel `json:"max_risk_level"`
	MinFundamentalScore float64   `json:"min_fundamental_score"`
	MinTechnicalScore   float64   `json:"min_technical_score"`
	MinUpside           float64   `json:"min_upside"`
}

// NoCriteria returns thresholds at their lowest bound
func NoCriteria() ScreeningCriteria {
	return ScreeningCriteria{
		MinRating:           0,
		MinConfidence:       0,
		MaxRiskLevel:        RiskVeryHigh,
		MinFundamentalScore: 0,
		MinTechnicalScore:   0,
		MinUpside:           -100,
	}
}

// Matches reports whether r satisfies every threshold
func (c ScreeningCriteria) Matches(r *CompositeResult) bool {
	maxRisk := c.MaxRiskLevel
	if maxRisk == "" {
		maxRisk = RiskVeryHigh
	}
	return r.OverallRating >= c.MinRating &&
		r.ConfidenceLevel >= c.MinConfidence &&
		r.RiskLevel.Rank() <= maxRisk.Rank() &&
		r.Scores.Fundamental >= c.MinFundamentalScore &&
		r.Scores.Technical >= c.MinTechnicalScore &&
		r.UpsidePotential >= c.MinUpside
}
