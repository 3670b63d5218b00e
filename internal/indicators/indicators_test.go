package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/alphalens/internal/contracts"
)

func makeBars(closes []float64) []contracts.Bar {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]contracts.Bar, len(closes))
	for i, c := range closes {
		bars[i] = contracts.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func ramp(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestCompute_FlatFiveBars(t *testing.T) {
	set := Compute(makeBars(flat(5, 100)))

	assert.Equal(t, 100.0, set.MA20)
	assert.Equal(t, 50.0, set.RSI)
	assert.Equal(t, 0.0, set.MACD)
	assert.Equal(t, 100.0, set.BollingerUpper)
	assert.Equal(t, 100.0, set.BollingerMiddle)
	assert.Equal(t, 100.0, set.BollingerLower)
	assert.Equal(t, 0.5, set.PercentB)
	assert.Equal(t, 5, set.Bars)
}

func TestNeutralDefaults(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
	}{
		{"empty", nil},
		{"single", []float64{100}},
		{"short", ramp(10, 100, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := makeBars(tt.closes)
			assert.Equal(t, 50.0, RSI(tt.closes, RSIPeriod))

			m, s, h := MACD(tt.closes)
			assert.Equal(t, 0.0, m)
			assert.Equal(t, 0.0, s)
			assert.Equal(t, 0.0, h)

			k, d := Stochastic(bars, StochKPeriod, StochDPeriod)
			assert.Equal(t, 50.0, k)
			assert.Equal(t, 50.0, d)
			assert.Equal(t, -50.0, WilliamsR(bars, WilliamsPeriod))
			assert.Equal(t, 0.0, ATR(bars, ATRPeriod))

			u, mid, l := Bollinger(tt.closes, BollingerPeriod, BollingerK)
			p := 0.0
			if len(tt.closes) > 0 {
				p = tt.closes[len(tt.closes)-1]
			}
			assert.Equal(t, p, u)
			assert.Equal(t, p, mid)
			assert.Equal(t, p, l)
		})
	}
}

func TestCompute_NeverNaN(t *testing.T) {
	series := [][]float64{
		nil,
		{0},
		flat(30, 0),
		flat(300, 100),
		ramp(300, 10, 0.5),
		ramp(40, 100, -2),
	}

	for _, closes := range series {
		set := Compute(makeBars(closes))
		for name, v := range map[string]float64{
			"ma20": set.MA20, "ma250": set.MA250, "rsi": set.RSI, "macd": set.MACD,
			"signal": set.MACDSignal, "stoch_k": set.StochK, "williams": set.WilliamsR,
			"upper": set.BollingerUpper, "width": set.BollingerWidth, "percent_b": set.PercentB,
			"atr": set.ATR, "volatility": set.Volatility,
		} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is not finite for %d bars", name, len(closes))
		}
	}
}

func TestSMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 4.0, SMA(prices, 3))
	assert.Equal(t, 3.0, SMA(prices, 5))
	assert.Equal(t, 5.0, SMA(prices, 10))
	assert.Equal(t, 0.0, SMA(nil, 10))
}

func TestEMA(t *testing.T) {
	assert.Equal(t, 0.0, EMA(nil, 10))
	assert.Equal(t, 42.0, EMA([]float64{42}, 10))

	// k = 2/(3+1) = 0.5: 10 → 15 → 17.5
	assert.InDelta(t, 17.5, EMA([]float64{10, 20, 20}, 3), 1e-9)
}

func TestRSI(t *testing.T) {
	assert.Equal(t, 100.0, RSI(ramp(20, 100, 1), 14))
	assert.Equal(t, 0.0, RSI(ramp(20, 100, -1), 14))
	assert.Equal(t, 50.0, RSI(flat(20, 100), 14))

	// alternate +2/-1 changes: avg gain 2·7/14, avg loss 1·7/14 → RS 2
	prices := []float64{100}
	for i := 0; i < 14; i++ {
		if i%2 == 0 {
			prices = append(prices, prices[len(prices)-1]+2)
		} else {
			prices = append(prices, prices[len(prices)-1]-1)
		}
	}
	assert.InDelta(t, 100-100.0/3, RSI(prices, 14), 1e-9)
}

func TestMACD_Trend(t *testing.T) {
	up, upSignal, _ := MACD(ramp(60, 100, 1))
	assert.Greater(t, up, 0.0)
	assert.Greater(t, upSignal, 0.0)

	down, _, _ := MACD(ramp(60, 200, -1))
	assert.Less(t, down, 0.0)

	m, s, h := MACD(flat(60, 100))
	assert.InDelta(t, 0.0, m, 1e-9)
	assert.InDelta(t, 0.0, s, 1e-9)
	assert.InDelta(t, 0.0, h, 1e-9)
}

func TestBollinger(t *testing.T) {
	// 20 values alternating 99/101: mean 100, stddev 1
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 99
		if i%2 == 1 {
			prices[i] = 101
		}
	}

	u, m, l := Bollinger(prices, 20, 2)
	assert.InDelta(t, 102.0, u, 1e-9)
	assert.InDelta(t, 100.0, m, 1e-9)
	assert.InDelta(t, 98.0, l, 1e-9)

	width, pb := BandMetrics(101, u, m, l)
	assert.InDelta(t, 0.04, width, 1e-9)
	assert.InDelta(t, 0.75, pb, 1e-9)
}

func TestOscillators(t *testing.T) {
	bars := makeBars(ramp(30, 100, 1))

	k, d := Stochastic(bars, 14, 3)
	assert.Greater(t, k, 80.0)
	assert.Greater(t, d, 80.0)
	assert.LessOrEqual(t, k, 100.0)

	wr := WilliamsR(bars, 14)
	assert.LessOrEqual(t, wr, 0.0)
	assert.Greater(t, wr, -20.0)

	// every bar: high-low = 2, |high-prevClose| = 2
	assert.InDelta(t, 2.0, ATR(bars, 14), 1e-9)
}

func TestVolatility(t *testing.T) {
	assert.Equal(t, 0.0, Volatility(flat(30, 100), 20))
	assert.Equal(t, 0.0, Volatility([]float64{100, 101}, 20))

	// +1%, -1% alternating returns
	prices := []float64{100}
	for i := 0; i < 20; i++ {
		p := prices[len(prices)-1]
		if i%2 == 0 {
			prices = append(prices, p*1.01)
		} else {
			prices = append(prices, p*0.99)
		}
	}
	assert.InDelta(t, 0.01, Volatility(prices, 20), 1e-9)
}

func TestAverageVolume(t *testing.T) {
	bars := makeBars(flat(3, 100))
	bars[2].Volume = 4000
	assert.Equal(t, 2000.0, AverageVolume(bars, 20))
	assert.Equal(t, 0.0, AverageVolume(nil, 20))

	require.Len(t, Closes(bars), 3)
}
