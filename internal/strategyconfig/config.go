package strategyconfig

import (
	"time"

	"github.com/wonny/alphalens/internal/contracts"
)

// Config는 종합 점수/선정 프로파일의 전체 설정
type Config struct {
	Meta      Meta      `yaml:"meta" json:"meta"`
	Weights   Weights   `yaml:"weights" json:"weights"`
	Targets   Targets   `yaml:"targets" json:"targets"`
	Screening Screening `yaml:"screening" json:"screening"`
}

// Meta 메타 정보
type Meta struct {
	ProfileID string `yaml:"profile_id" json:"profile_id"`
	Version   string `yaml:"version" json:"version"`
}

// Weights 5개 서브 점수 가중치 (합 = 1.0)
type Weights struct {
	Fundamental float64 `yaml:"fundamental" json:"fundamental"`
	Technical   float64 `yaml:"technical" json:"technical"`
	Sentiment   float64 `yaml:"sentiment" json:"sentiment"`
	Market      float64 `yaml:"market" json:"market"`
	Industry    float64 `yaml:"industry" json:"industry"`
}

// Sum returns the sum of all weights
func (w Weights) Sum() float64 {
	return w.Fundamental + w.Technical + w.Sentiment + w.Market + w.Industry
}

func (w Weights) list() []float64 {
	return []float64{w.Fundamental, w.Technical, w.Sentiment, w.Market, w.Industry}
}

// Targets 목표가/손절가 산식 계수
type Targets struct {
	BaseGain    float64 `yaml:"base_gain" json:"base_gain"`
	RatingSlope float64 `yaml:"rating_slope" json:"rating_slope"` // (rating-5)당 가산
	TrendBonus  float64 `yaml:"trend_bonus" json:"trend_bonus"`
	MinGain     float64 `yaml:"min_gain" json:"min_gain"`
	MaxGain     float64 `yaml:"max_gain" json:"max_gain"`

	StopBuy        float64 `yaml:"stop_buy" json:"stop_buy"`   // rating ≥ 7.0
	StopHold       float64 `yaml:"stop_hold" json:"stop_hold"` // rating ≥ 5.5
	StopWeak       float64 `yaml:"stop_weak" json:"stop_weak"`
	VolatilityMult float64 `yaml:"volatility_mult" json:"volatility_mult"`
	MinStop        float64 `yaml:"min_stop" json:"min_stop"`
	MaxStop        float64 `yaml:"max_stop" json:"max_stop"`
}

// Screening 선정/진단 기본값
type Screening struct {
	FreshnessDays         int      `yaml:"freshness_days" json:"freshness_days"`
	DiagnoseFreshnessDays int      `yaml:"diagnose_freshness_days" json:"diagnose_freshness_days"`
	TopN                  int      `yaml:"top_n" json:"top_n"`
	Defaults              Criteria `yaml:"defaults" json:"defaults"`
}

// Criteria 기본 선정 조건
type Criteria struct {
	MinRating           float64 `yaml:"min_rating" json:"min_rating"`
	MinConfidence       int     `yaml:"min_confidence" json:"min_confidence"`
	MaxRiskLevel        string  `yaml:"max_risk_level" json:"max_risk_level"`
	MinFundamentalScore float64 `yaml:"min_fundamental_score" json:"min_fundamental_score"`
	MinTechnicalScore   float64 `yaml:"min_technical_score" json:"min_technical_score"`
	MinUpside           float64 `yaml:"min_upside" json:"min_upside"`
}

// ToContract converts to contracts.ScreeningCriteria
func (c Criteria) ToContract() contracts.ScreeningCriteria {
	return contracts.ScreeningCriteria{
		MinRating:           c.MinRating,
		MinConfidence:       c.MinConfidence,
		MaxRiskLevel:        contracts.RiskLevel(c.MaxRiskLevel),
		MinFundamentalScore: c.MinFundamentalScore,
		MinTechnicalScore:   c.MinTechnicalScore,
		MinUpside:           c.MinUpside,
	}
}

// Freshness is the maximum age of a cached result for batch screening
func (s Screening) Freshness() time.Duration {
	return time.Duration(s.FreshnessDays) * 24 * time.Hour
}

// DiagnoseFreshness is the maximum age of a cached result for diagnosis
func (s Screening) DiagnoseFreshness() time.Duration {
	return time.Duration(s.DiagnoseFreshnessDays) * 24 * time.Hour
}

// Default returns the built-in profile
// ⭐ SSOT: 가중치 30/25/20/15/10, 신선도 7일/1일
func Default() *Config {
	return &Config{
		Meta: Meta{
			ProfileID: "default",
			Version:   "1.0.0",
		},
		Weights: Weights{
			Fundamental: 0.30,
			Technical:   0.25,
			Sentiment:   0.20,
			Market:      0.15,
			Industry:    0.10,
		},
		Targets: Targets{
			BaseGain:       0.10,
			RatingSlope:    0.05,
			TrendBonus:     0.05,
			MinGain:        -0.15,
			MaxGain:        0.50,
			StopBuy:        0.08,
			StopHold:       0.12,
			StopWeak:       0.15,
			VolatilityMult: 2.0,
			MinStop:        0.05,
			MaxStop:        0.25,
		},
		Screening: Screening{
			FreshnessDays:         7,
			DiagnoseFreshnessDays: 1,
			TopN:                  10,
			Defaults: Criteria{
				MinRating:     7.0,
				MinConfidence: 60,
				MaxRiskLevel:  string(contracts.RiskMedium),
				MinUpside:     5,
			},
		},
	}
}
