package strategyconfig

import (
	"errors"
	"fmt"
	"math"

	"github.com/wonny/alphalens/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ProfileID == "" {
		return ValidationError{"meta.profile_id", "required"}
	}

	// === Weights ===
	for _, w := range cfg.Weights.list() {
		if w < 0 {
			return ValidationError{"weights", "must be >= 0"}
		}
	}
	if err := validateWeightsSum(cfg.Weights.list(), 1.0, 0.01); err != nil {
		return ValidationError{"weights", err.Error()}
	}

	// === Targets ===
	t := cfg.Targets
	if t.MinGain >= t.MaxGain {
		return ValidationError{"targets", "min_gain must be < max_gain"}
	}
	if err := validatePctRange(t.MinStop, "targets.min_stop"); err != nil {
		return err
	}
	if err := validatePctRange(t.MaxStop, "targets.max_stop"); err != nil {
		return err
	}
	if t.MinStop >= t.MaxStop {
		return ValidationError{"targets", "min_stop must be < max_stop"}
	}
	// 등급이 낮을수록 손절폭이 넓어야 함
	if !(t.StopBuy <= t.StopHold && t.StopHold <= t.StopWeak) {
		return ValidationError{"targets", "stop_buy <= stop_hold <= stop_weak required"}
	}
	if t.VolatilityMult < 0 {
		return ValidationError{"targets.volatility_mult", "must be >= 0"}
	}

	// === Screening ===
	s := cfg.Screening
	if s.FreshnessDays <= 0 {
		return ValidationError{"screening.freshness_days", "must be > 0"}
	}
	if s.DiagnoseFreshnessDays <= 0 {
		return ValidationError{"screening.diagnose_freshness_days", "must be > 0"}
	}
	if s.TopN <= 0 {
		return ValidationError{"screening.top_n", "must be > 0"}
	}
	if s.Defaults.MinRating < 0 || s.Defaults.MinRating > 10 {
		return ValidationError{"screening.defaults.min_rating", "must be in range [0, 10]"}
	}
	if s.Defaults.MinConfidence < 0 || s.Defaults.MinConfidence > 100 {
		return ValidationError{"screening.defaults.min_confidence", "must be in range [0, 100]"}
	}
	if _, err := contracts.ParseRiskLevel(s.Defaults.MaxRiskLevel); err != nil {
		return ValidationError{"screening.defaults.max_risk_level", err.Error()}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 단일 팩터 편중 경고
	for _, w := range cfg.Weights.list() {
		if w > 0.5 {
			warnings = append(warnings, Warning{
				Code:    "CONCENTRATED_WEIGHT",
				Message: "단일 서브 점수 가중치 > 50%: 종합 점수가 한 팩터에 좌우됨",
			})
			break
		}
	}

	// 오래된 결과 재사용 경고
	if cfg.Screening.FreshnessDays > 30 {
		warnings = append(warnings, Warning{
			Code:    "STALE_RESULTS",
			Message: "freshness_days > 30: 오래된 분석 결과로 선정될 수 있음",
		})
	}

	if cfg.Targets.MaxGain > 1.0 {
		warnings = append(warnings, Warning{
			Code:    "AGGRESSIVE_TARGET",
			Message: "max_gain > 100%: 목표가가 비현실적일 수 있음",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateWeightsSum(weights []float64, target float64, epsilon float64) error {
	if len(weights) == 0 {
		return errors.New("must not be empty")
	}
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if math.Abs(sum-target) > epsilon {
		return fmt.Errorf("must sum to %.2f, got %.4f", target, sum)
	}
	return nil
}

// validatePctRange는 퍼센트 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
