package contracts

// IndicatorSet is derived from the bar series at computation time
// ⭐ SSOT: 지표 값은 bars에서만 계산, 개별 수정 금지
type IndicatorSet struct {
	// Moving averages
	MA5   float64 `json:"ma5"`
	MA10  float64 `json:"ma10"`
	MA20  float64 `json:"ma20"`
	MA50  float64 `json:"ma50"`
	MA60  float64 `json:"ma60"`
	MA120 float64 `json:"ma120"`
	MA200 float64 `json:"ma200"`
	MA250 float64 `json:"ma250"`

	// Oscillators
	RSI           float64 `json:"rsi"`
	MACD          float64 `json:"macd"`
	MACDSignal    float64 `json:"macd_signal"`
	MACDHistogram float64 `json:"macd_histogram"`
	StochK        float64 `json:"stoch_k"`
	StochD        float64 `json:"stoch_d"`
	WilliamsR     float64 `json:"williams_r"`

	// Volatility bands
	BollingerUpper  float64 `json:"bollinger_upper"`
	BollingerMiddle float64 `json:"bollinger_middle"`
	BollingerLower  float64 `json:"bollinger_lower"`
	BollingerWidth  float64 `json:"bollinger_width"`
	PercentB        float64 `json:"percent_b"`
	ATR             float64 `json:"atr"`
	Volatility      float64 `json:"volatility"` // 20일 일간 수익률 표준편차

	// Volume
	AvgVolume20 float64 `json:"avg_volume_20"`

	Bars int `json:"bars"` // 계산에 사용된 bar 수
}
