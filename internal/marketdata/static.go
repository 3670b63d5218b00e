package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/alphalens/internal/contracts"
)

// StaticInstruments is an in-memory universe for development and tests
type StaticInstruments struct {
	mu    sync.RWMutex
	items map[string]contracts.Instrument
}

// NewStaticInstruments creates a universe from the given instruments
func NewStaticInstruments(instruments ...contracts.Instrument) *StaticInstruments {
	s := &StaticInstruments{items: make(map[string]contracts.Instrument, len(instruments))}
	for _, inst := range instruments {
		s.items[inst.Symbol] = inst
	}
	return s
}

// DefaultUniverse is a small set of large KOSPI caps used when no database is configured
func DefaultUniverse() []contracts.Instrument {
	return []contracts.Instrument{
		{Symbol: "005930", Name: "삼성전자", Market: "KOSPI", Industry: "반도체", Active: true},
		{Symbol: "000660", Name: "SK하이닉스", Market: "KOSPI", Industry: "반도체", Active: true},
		{Symbol: "373220", Name: "LG에너지솔루션", Market: "KOSPI", Industry: "전기제품", Active: true},
		{Symbol: "207940", Name: "삼성바이오로직스", Market: "KOSPI", Industry: "생명과학", Active: true},
		{Symbol: "005380", Name: "현대차", Market: "KOSPI", Industry: "자동차", Active: true},
		{Symbol: "068270", Name: "셀트리온", Market: "KOSPI", Industry: "제약", Active: true},
		{Symbol: "035420", Name: "NAVER", Market: "KOSPI", Industry: "인터넷", Active: true},
		{Symbol: "105560", Name: "KB금융", Market: "KOSPI", Industry: "은행", Active: true},
		{Symbol: "051910", Name: "LG화학", Market: "KOSPI", Industry: "화학", Active: true},
		{Symbol: "035720", Name: "카카오", Market: "KOSPI", Industry: "인터넷", Active: true},
	}
}

// FindInstrument returns the instrument or ErrNotFound
func (s *StaticInstruments) FindInstrument(ctx context.Context, symbol string) (*contracts.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.items[symbol]
	if !ok {
		return nil, fmt.Errorf("instrument %s: %w", symbol, contracts.ErrNotFound)
	}
	return &inst, nil
}

// ListActive returns active instruments ordered by symbol
func (s *StaticInstruments) ListActive(ctx context.Context) ([]contracts.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.Instrument, 0, len(s.items))
	for _, inst := range s.items {
		if inst.Active {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Put adds or replaces an instrument
func (s *StaticInstruments) Put(inst contracts.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[inst.Symbol] = inst
}
