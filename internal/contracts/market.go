package contracts

import "time"

// Bar is one daily OHLCV candle
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Instrument is a tradable symbol and its price history
// ⭐ SSOT: Bars는 항상 오래된 것 → 최신 순서
type Instrument struct {
	Symbol      string    `json:"symbol"`
	Name        string    `json:"name"`
	Market      string    `json:"market"`   // KOSPI, KOSDAQ
	Industry    string    `json:"industry"` // 업종
	Active      bool      `json:"active"`
	LatestPrice float64   `json:"latest_price"`
	Bars        []Bar     `json:"bars,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Closes returns the close series in chronological order
func (i *Instrument) Closes() []float64 {
	closes := make([]float64, len(i.Bars))
	for idx, b := range i.Bars {
		closes[idx] = b.Close
	}
	return closes
}

// Quote is the latest price tick
type Quote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	Change     float64   `json:"change"`
	ChangeRate float64   `json:"change_rate"` // %
	Volume     int64     `json:"volume"`
	Timestamp  time.Time `json:"timestamp"`
}

// SentimentLabel is a provider-assigned news polarity
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// NewsItem is one recent headline
type NewsItem struct {
	Title       string          `json:"title"`
	Summary     string          `json:"summary,omitempty"`
	Source      string          `json:"source,omitempty"`
	URL         string          `json:"url,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
	Sentiment   *SentimentLabel `json:"sentiment,omitempty"` // nil: 미분류
}

// Fundamentals holds valuation and quality ratios
// nil 필드는 데이터 없음을 의미 (0과 구분)
type Fundamentals struct {
	PE            *float64 `json:"pe,omitempty"`
	PB            *float64 `json:"pb,omitempty"`
	PS            *float64 `json:"ps,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"` // %
	ROE           *float64 `json:"roe,omitempty"`            // %
	DebtToEquity  *float64 `json:"debt_to_equity,omitempty"` // ratio (1.0 = 100%)
}

// MarketContext holds market and industry inputs
type MarketContext struct {
	TrendDirection *float64 `json:"trend_direction,omitempty"` // -1 ~ 1
	RelativeVolume *float64 `json:"relative_volume,omitempty"` // 최근 거래량 / 평균
	Volatility     *float64 `json:"volatility,omitempty"`      // 일간 수익률 표준편차
	IndustryGrowth *float64 `json:"industry_growth,omitempty"` // %
	IndustryRank   *int     `json:"industry_rank,omitempty"`   // 1 = 업종 1위
	IndustrySize   *int     `json:"industry_size,omitempty"`
	MarketShare    *float64 `json:"market_share,omitempty"` // %
}

// Snapshot is everything the pipeline reads for one symbol
// ⭐ SSOT: 분석 파이프라인의 유일한 입력
type Snapshot struct {
	Instrument   Instrument     `json:"instrument"`
	Quote        *Quote         `json:"quote,omitempty"`
	News         []NewsItem     `json:"news,omitempty"`
	Fundamentals *Fundamentals  `json:"fundamentals,omitempty"`
	Market       *MarketContext `json:"market,omitempty"`
	Stale        bool           `json:"stale"` // 캐시 fallback 사용 여부
	FetchedAt    time.Time      `json:"fetched_at"`
}

// CurrentPrice prefers the live quote over the last close
func (s *Snapshot) CurrentPrice() float64 {
	if s.Quote != nil && s.Quote.Price > 0 {
		return s.Quote.Price
	}
	if s.Instrument.LatestPrice > 0 {
		return s.Instrument.LatestPrice
	}
	if n := len(s.Instrument.Bars); n > 0 {
		return s.Instrument.Bars[n-1].Close
	}
	return 0
}

// Float is a helper for optional ratio fields
func Float(v float64) *float64 { return &v }

// Int is a helper for optional integer fields
func Int(v int) *int { return &v }
