// Package marketdata supplies the analysis pipeline with quotes, bars, news,
// fundamentals and market context, caching every input so that a provider
// outage degrades to the last known value instead of failing the task.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/external/naver"
	"github.com/wonny/alphalens/internal/indicators"
	"github.com/wonny/alphalens/pkg/logger"
	"github.com/wonny/alphalens/pkg/redis"
)

// IndexSymbol is the benchmark used for the market trend
const IndexSymbol = "KOSPI"

// 시장 추세 계산용 지수 조회 기간 (영업일 20일 확보)
const (
	indexLookbackDays = 45
	indexTrendPeriod  = 20
)

// MaxBarWindow is the calendar span cached per symbol (1y range + MA250 warm-up).
// Shorter requests are sliced from the same series.
const MaxBarWindow = 365 + 380

// Provider is the upstream market data client (Naver Finance)
type Provider interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error)
	FetchQuote(ctx context.Context, symbol string) (*contracts.Quote, error)
	FetchNews(ctx context.Context, symbol string) ([]contracts.NewsItem, error)
	FetchCompany(ctx context.Context, symbol string) (*naver.Company, error)
}

// BarStore persists daily bars (last resort when provider and cache are empty)
type BarStore interface {
	SaveBars(ctx context.Context, symbol string, bars []contracts.Bar) error
	LoadBars(ctx context.Context, symbol string, from time.Time) ([]contracts.Bar, error)
}

// TTLs decides how long a fetched input is served without asking the provider
type TTLs struct {
	Quote   time.Duration
	Bars    time.Duration
	News    time.Duration
	Company time.Duration
	Index   time.Duration
}

// DefaultTTLs returns the standard freshness windows
func DefaultTTLs() TTLs {
	return TTLs{
		Quote:   redis.TTLShort,
		Bars:    redis.TTLLong,
		News:    redis.TTLLong,
		Company: redis.TTLDaily,
		Index:   redis.TTLLong,
	}
}

type entry struct {
	value     interface{}
	fetchedAt time.Time
}

// cached is the Redis representation; FetchedAt decides freshness
type cached[T any] struct {
	Value     T         `json:"value"`
	FetchedAt time.Time `json:"fetched_at"`
}

// RemoteCache is the shared cache between processes (*redis.Cache)
type RemoteCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Source implements contracts.DataSource on top of a Provider
// ⭐ SSOT: 분석 파이프라인의 외부 데이터는 여기서만 조회
type Source struct {
	provider Provider
	cache    RemoteCache
	store    BarStore
	ttl      TTLs
	logger   *logger.Logger
	now      func() time.Time

	mu    sync.Mutex
	mem   map[string]entry
	stale map[string]map[string]bool // symbol → input kind
}

// NewSource creates a data source; cache and store may be nil
func NewSource(provider Provider, cache *redis.Cache, store BarStore, ttl TTLs, log *logger.Logger) *Source {
	if cache == nil {
		cache = redis.NewCache(redis.Disabled(), "")
	}
	return &Source{
		provider: provider,
		cache:    cache,
		store:    store,
		ttl:      ttl,
		logger:   log.WithModule("marketdata"),
		now:      time.Now,
		mem:      make(map[string]entry),
		stale:    make(map[string]map[string]bool),
	}
}

// GetLatestQuote returns the latest quote
func (s *Source) GetLatestQuote(ctx context.Context, symbol string) (*contracts.Quote, error) {
	return s.quote(ctx, symbol, false)
}

func (s *Source) quote(ctx context.Context, symbol string, force bool) (*contracts.Quote, error) {
	return load(ctx, s, symbol, "quote", redis.QuoteKey(symbol), s.ttl.Quote, force, func() (*contracts.Quote, error) {
		return s.provider.FetchQuote(ctx, symbol)
	})
}

// GetHistoricalBars returns daily bars covering the last days calendar days, oldest first
func (s *Source) GetHistoricalBars(ctx context.Context, symbol string, days int) ([]contracts.Bar, error) {
	return s.historicalBars(ctx, symbol, days, false)
}

// historicalBars serves every window up to MaxBarWindow from one cached series
func (s *Source) historicalBars(ctx context.Context, symbol string, days int, force bool) ([]contracts.Bar, error) {
	window := max(days, MaxBarWindow)
	key := redis.BarsKey(symbol)
	if window > MaxBarWindow {
		key = fmt.Sprintf("%s:%d", key, window)
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	bars, err := load(ctx, s, symbol, "bars", key, s.ttl.Bars, force, func() ([]contracts.Bar, error) {
		bars, err := s.provider.FetchBars(ctx, symbol, to.AddDate(0, 0, -window), to)
		if err == nil && s.store != nil {
			if serr := s.store.SaveBars(ctx, symbol, bars); serr != nil {
				s.logger.WithError(serr).WithField("symbol", symbol).Warn("Failed to persist bars")
			}
		}
		return bars, err
	})
	if err == nil {
		return barsSince(bars, from), nil
	}
	if s.store == nil || !errors.Is(err, contracts.ErrDataUnavailable) {
		return nil, err
	}

	// 캐시도 없으면 DB에 저장된 과거 일봉 사용
	stored, serr := s.store.LoadBars(ctx, symbol, from)
	if serr != nil || len(stored) == 0 {
		return nil, err
	}
	s.markStale(symbol, "bars", true)
	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(stored),
	}).Warn("Serving bars from store")
	return stored, nil
}

// barsSince returns the tail of bars (oldest first) dated on or after the calendar day of from
func barsSince(bars []contracts.Bar, from time.Time) []contracts.Bar {
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].Date.Before(day) })
	return bars[i:]
}

// GetRecentNews returns recent headlines; an empty list is not an error
func (s *Source) GetRecentNews(ctx context.Context, symbol string) ([]contracts.NewsItem, error) {
	return load(ctx, s, symbol, "news", redis.NewsKey(symbol), s.ttl.News, false, func() ([]contracts.NewsItem, error) {
		return s.provider.FetchNews(ctx, symbol)
	})
}

// GetFundamentals returns valuation ratios from the company page
func (s *Source) GetFundamentals(ctx context.Context, symbol string) (*contracts.Fundamentals, error) {
	company, err := s.company(ctx, symbol)
	if err != nil {
		return nil, err
	}
	f := company.Fundamentals
	return &f, nil
}

// GetMarketContext combines the benchmark trend with the industry peer table
func (s *Source) GetMarketContext(ctx context.Context, symbol string) (*contracts.MarketContext, error) {
	mc := &contracts.MarketContext{}
	found := false

	if company, err := s.company(ctx, symbol); err == nil && company.Industry != nil {
		mc = company.Industry.MarketContext()
		found = true
	}

	if trend, err := s.indexTrend(ctx); err == nil {
		mc.TrendDirection = contracts.Float(trend)
		found = true
	}

	if !found {
		return nil, fmt.Errorf("market context %s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return mc, nil
}

func (s *Source) company(ctx context.Context, symbol string) (*naver.Company, error) {
	return load(ctx, s, symbol, "company", redis.FundamentalsKey(symbol), s.ttl.Company, false, func() (*naver.Company, error) {
		return s.provider.FetchCompany(ctx, symbol)
	})
}

// indexTrend maps the benchmark's distance from its 20-day average to [-1, 1]
func (s *Source) indexTrend(ctx context.Context) (float64, error) {
	key := fmt.Sprintf("%s:%d", redis.BarsKey(IndexSymbol), indexLookbackDays)
	to := s.now()

	bars, err := load(ctx, s, IndexSymbol, "bars", key, s.ttl.Index, false, func() ([]contracts.Bar, error) {
		return s.provider.FetchBars(ctx, IndexSymbol, to.AddDate(0, 0, -indexLookbackDays), to)
	})
	if err != nil {
		return 0, err
	}
	return IndexTrend(indicators.Closes(bars))
}

// IndexTrend is (last/MA20 − 1) × 10 clamped to [-1, 1]; ±10% from the average saturates
func IndexTrend(closes []float64) (float64, error) {
	if len(closes) < indexTrendPeriod {
		return 0, fmt.Errorf("index trend needs %d closes: %w", indexTrendPeriod, contracts.ErrDataUnavailable)
	}
	ma := indicators.SMA(closes, indexTrendPeriod)
	if ma <= 0 {
		return 0, fmt.Errorf("index average is zero: %w", contracts.ErrDataUnavailable)
	}
	trend := (closes[len(closes)-1]/ma - 1) * 10
	if trend > 1 {
		trend = 1
	}
	if trend < -1 {
		trend = -1
	}
	return trend, nil
}

// IsStale reports whether any input last served for symbol came from a fallback
func (s *Source) IsStale(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.stale[symbol] {
		if v {
			return true
		}
	}
	return false
}

func (s *Source) markStale(symbol, kind string, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale[symbol] == nil {
		s.stale[symbol] = make(map[string]bool)
	}
	s.stale[symbol][kind] = stale
}

// load serves key from memory or Redis while fresh, otherwise asks the provider.
// force skips the freshness check of both caches. A provider failure falls back
// to any cached value (marked stale); with nothing cached it returns ErrDataUnavailable.
func load[T any](ctx context.Context, s *Source, symbol, kind, key string, ttl time.Duration, force bool, fetch func() (T, error)) (T, error) {
	var zero T
	now := s.now()

	// 1. 프로세스 캐시
	s.mu.Lock()
	e, hasMem := s.mem[key]
	s.mu.Unlock()
	if !force && hasMem && now.Sub(e.fetchedAt) < ttl {
		return e.value.(T), nil
	}

	// 2. Redis 캐시
	var remote cached[T]
	hasRemote, err := s.cache.Get(ctx, key, &remote)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
	}
	if !force && hasRemote && now.Sub(remote.FetchedAt) < ttl {
		s.remember(key, remote.Value, remote.FetchedAt)
		return remote.Value, nil
	}

	// 3. 제공자
	value, fetchErr := fetch()
	if fetchErr == nil {
		s.remember(key, value, now)
		if err := s.cache.Set(ctx, key, cached[T]{Value: value, FetchedAt: now}, redis.TTLStale); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
		s.markStale(symbol, kind, false)
		return value, nil
	}

	// 4. 마지막 값 fallback
	log := s.logger.WithError(fetchErr).WithFields(map[string]interface{}{
		"symbol": symbol,
		"input":  kind,
	})
	switch {
	case hasMem:
		log.Warn("Provider failed, serving last known value")
		s.markStale(symbol, kind, true)
		return e.value.(T), nil
	case hasRemote:
		log.Warn("Provider failed, serving cached value")
		s.remember(key, remote.Value, remote.FetchedAt)
		s.markStale(symbol, kind, true)
		return remote.Value, nil
	}

	log.Warn("Provider failed with no cached value")
	return zero, fmt.Errorf("%s %s: %w: %w", kind, symbol, contracts.ErrDataUnavailable, fetchErr)
}

func (s *Source) remember(key string, value interface{}, at time.Time) {
	s.mu.Lock()
	s.mem[key] = entry{value: value, fetchedAt: at}
	s.mu.Unlock()
}
