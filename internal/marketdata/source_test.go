package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/external/naver"
	"github.com/wonny/alphalens/pkg/logger"
)

type fakeProvider struct {
	mu      sync.Mutex
	fail    bool
	calls   map[string]int
	company *naver.Company
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls: make(map[string]int),
		company: &naver.Company{
			Fundamentals: contracts.Fundamentals{PE: contracts.Float(10)},
			Industry:     &naver.Industry{Rank: 2, Size: 5, MarketShare: 20},
		},
	}
}

func (p *fakeProvider) hit(kind string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[kind]++
	if p.fail {
		return errors.New("naver timeout")
	}
	return nil
}

func (p *fakeProvider) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

func (p *fakeProvider) count(kind string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[kind]
}

func rampBars(n int, start float64) []contracts.Bar {
	bars := make([]contracts.Bar, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + float64(i)
		bars[i] = contracts.Bar{Date: day.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return bars
}

// FetchBars returns 30 daily bars ending on the calendar day of to
func (p *fakeProvider) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	if err := p.hit("bars:" + symbol); err != nil {
		return nil, err
	}
	bars := rampBars(30, 100)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i].Date = last.AddDate(0, 0, i-len(bars)+1)
	}
	return bars, nil
}

func (p *fakeProvider) FetchQuote(ctx context.Context, symbol string) (*contracts.Quote, error) {
	if err := p.hit("quote"); err != nil {
		return nil, err
	}
	return &contracts.Quote{Symbol: symbol, Price: 71000}, nil
}

func (p *fakeProvider) FetchNews(ctx context.Context, symbol string) ([]contracts.NewsItem, error) {
	if err := p.hit("news"); err != nil {
		return nil, err
	}
	return []contracts.NewsItem{{Title: "headline"}}, nil
}

func (p *fakeProvider) FetchCompany(ctx context.Context, symbol string) (*naver.Company, error) {
	if err := p.hit("company"); err != nil {
		return nil, err
	}
	return p.company, nil
}

type memoryStore struct {
	bars map[string][]contracts.Bar
}

func (m *memoryStore) SaveBars(ctx context.Context, symbol string, bars []contracts.Bar) error {
	m.bars[symbol] = bars
	return nil
}

func (m *memoryStore) LoadBars(ctx context.Context, symbol string, from time.Time) ([]contracts.Bar, error) {
	return m.bars[symbol], nil
}

// memoryCache stands in for Redis shared between processes
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	data, ok := c.items[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = data
	c.mu.Unlock()
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestSource(p Provider, store BarStore) (*Source, *clock) {
	src := NewSource(p, nil, store, DefaultTTLs(), logger.NewNop())
	c := &clock{t: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)}
	src.now = c.now
	return src, c
}

func TestSource_ServesFreshCache(t *testing.T) {
	p := newFakeProvider()
	src, clk := newTestSource(p, nil)
	ctx := context.Background()

	q, err := src.GetLatestQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 71000.0, q.Price)

	_, err = src.GetLatestQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("quote"))

	clk.add(2 * time.Minute)
	_, err = src.GetLatestQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 2, p.count("quote"))
	assert.False(t, src.IsStale("005930"))
}

func TestSource_FallsBackToLastKnownValue(t *testing.T) {
	p := newFakeProvider()
	src, clk := newTestSource(p, nil)
	ctx := context.Background()

	_, err := src.GetRecentNews(ctx, "005930")
	require.NoError(t, err)

	p.setFail(true)
	clk.add(2 * time.Hour)

	news, err := src.GetRecentNews(ctx, "005930")
	require.NoError(t, err)
	assert.Len(t, news, 1)
	assert.True(t, src.IsStale("005930"))

	// 복구되면 stale 해제
	p.setFail(false)
	_, err = src.GetRecentNews(ctx, "005930")
	require.NoError(t, err)
	assert.False(t, src.IsStale("005930"))
}

func TestSource_NoCacheIsDataUnavailable(t *testing.T) {
	p := newFakeProvider()
	p.setFail(true)
	src, _ := newTestSource(p, nil)

	_, err := src.GetLatestQuote(context.Background(), "005930")
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
	assert.Contains(t, err.Error(), "naver timeout")

	_, err = src.GetFundamentals(context.Background(), "005930")
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)

	_, err = src.GetMarketContext(context.Background(), "005930")
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

func TestSource_BarsPersistAndStoreFallback(t *testing.T) {
	p := newFakeProvider()
	store := &memoryStore{bars: make(map[string][]contracts.Bar)}
	ctx := context.Background()

	src, _ := newTestSource(p, store)
	bars, err := src.GetHistoricalBars(ctx, "005930", 30)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.Len(t, store.bars["005930"], 30)

	// 새 프로세스: 메모리 캐시 없음, 제공자 장애 → DB 일봉
	p.setFail(true)
	restarted, _ := newTestSource(p, store)
	bars, err = restarted.GetHistoricalBars(ctx, "005930", 30)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.True(t, restarted.IsStale("005930"))

	_, err = restarted.GetHistoricalBars(ctx, "000660", 30)
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

func TestSource_MarketContext(t *testing.T) {
	p := newFakeProvider()
	src, _ := newTestSource(p, nil)

	mc, err := src.GetMarketContext(context.Background(), "005930")
	require.NoError(t, err)
	require.NotNil(t, mc.IndustryRank)
	assert.Equal(t, 2, *mc.IndustryRank)
	require.NotNil(t, mc.TrendDirection)
	assert.Greater(t, *mc.TrendDirection, 0.0) // 상승 램프
	assert.Equal(t, 1, p.count("bars:"+IndexSymbol))

	f, err := src.GetFundamentals(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, 10.0, *f.PE)
	assert.Equal(t, 1, p.count("company")) // 회사 페이지 1회 조회
}

func TestIndexTrend(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	trend, err := IndexTrend(flat)
	require.NoError(t, err)
	assert.Equal(t, 0.0, trend)

	up := append(append([]float64{}, flat[:19]...), 200)
	trend, err = IndexTrend(up)
	require.NoError(t, err)
	assert.Equal(t, 1.0, trend)

	down := append(append([]float64{}, flat[:19]...), 97)
	trend, err = IndexTrend(down)
	require.NoError(t, err)
	assert.InDelta(t, (97/99.85-1)*10, trend, 1e-9)

	_, err = IndexTrend(flat[:5])
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

func TestRefresh(t *testing.T) {
	p := newFakeProvider()
	src, _ := newTestSource(p, nil)
	ctx := context.Background()

	res := src.Refresh(ctx, []string{"005930", "000660"}, RefreshQuotes, 2)
	assert.Equal(t, 2, res.Refreshed)
	assert.Empty(t, res.Failed)

	// 캐시를 무시하고 다시 조회
	res = src.Refresh(ctx, []string{"005930"}, RefreshQuotes, 1)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 3, p.count("quote"))

	res = src.Refresh(ctx, []string{"005930"}, RefreshHistory, 1)
	assert.Equal(t, 1, res.Refreshed)

	// 장애 시 기존 값은 stale로 유지, 값이 없던 종목만 실패
	p.setFail(true)
	res = src.Refresh(ctx, []string{"005930", "035420"}, RefreshHistory, 2)
	assert.Equal(t, []string{"035420"}, res.Failed)
	assert.Equal(t, 0, res.Refreshed)
	assert.Equal(t, 1, res.Stale)
}

func TestRefresh_WarmsEveryAnalysisWindow(t *testing.T) {
	p := newFakeProvider()
	src, _ := newTestSource(p, nil)
	ctx := context.Background()

	res := src.Refresh(ctx, []string{"005930"}, RefreshHistory, 1)
	require.Equal(t, 1, res.Refreshed)
	require.Equal(t, 1, p.count("bars:005930"))

	// 1m, 3m, 6m, 1y + MA250 워밍업
	for _, days := range []int{30 + 380, 90 + 380, 180 + 380, 365 + 380} {
		bars, err := src.GetHistoricalBars(ctx, "005930", days)
		require.NoError(t, err)
		assert.Len(t, bars, 30)
	}
	assert.Equal(t, 1, p.count("bars:005930"))

	// 짧은 기간은 같은 시계열에서 잘라냄
	bars, err := src.GetHistoricalBars(ctx, "005930", 10)
	require.NoError(t, err)
	require.Len(t, bars, 11)
	assert.Equal(t, time.Date(2025, 5, 23, 0, 0, 0, 0, time.UTC), bars[0].Date)
	assert.Equal(t, 1, p.count("bars:005930"))
}

func TestRefresh_BypassesFreshRemoteCache(t *testing.T) {
	p := newFakeProvider()
	shared := newMemoryCache()
	ctx := context.Background()

	first, _ := newTestSource(p, nil)
	first.cache = shared
	_, err := first.GetLatestQuote(ctx, "005930")
	require.NoError(t, err)
	_, err = first.GetHistoricalBars(ctx, "005930", 180+380)
	require.NoError(t, err)
	require.Equal(t, 1, p.count("quote"))
	require.Equal(t, 1, p.count("bars:005930"))

	// 다른 프로세스: 일반 조회는 Redis 값을 그대로 사용
	second, _ := newTestSource(p, nil)
	second.cache = shared
	_, err = second.GetLatestQuote(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, 1, p.count("quote"))

	// 스케줄 갱신은 신선한 Redis 값이 있어도 제공자 조회
	res := second.Refresh(ctx, []string{"005930"}, RefreshQuotes, 1)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 2, p.count("quote"))

	res = second.Refresh(ctx, []string{"005930"}, RefreshHistory, 1)
	assert.Equal(t, 1, res.Refreshed)
	assert.Equal(t, 2, p.count("bars:005930"))

	// 갱신된 값은 공유 캐시로 새 프로세스에도 전달
	third, _ := newTestSource(p, nil)
	third.cache = shared
	bars, err := third.GetHistoricalBars(ctx, "005930", 30+380)
	require.NoError(t, err)
	assert.Len(t, bars, 30)
	assert.Equal(t, 2, p.count("bars:005930"))
}

func TestStaticInstruments(t *testing.T) {
	s := NewStaticInstruments(DefaultUniverse()...)
	s.Put(contracts.Instrument{Symbol: "999999", Name: "상장폐지", Active: false})
	ctx := context.Background()

	inst, err := s.FindInstrument(ctx, "005930")
	require.NoError(t, err)
	assert.Equal(t, "삼성전자", inst.Name)

	_, err = s.FindInstrument(ctx, "123456")
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, len(DefaultUniverse()))
	for i := 1; i < len(active); i++ {
		assert.Less(t, active[i-1].Symbol, active[i].Symbol)
	}
	assert.Equal(t, len(active), len(Symbols(active)))
}
