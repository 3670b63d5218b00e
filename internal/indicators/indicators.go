// Package indicators computes technical indicators from an ordered bar series.
// All functions are total: insufficient data yields a neutral default, never NaN.
package indicators

import (
	"math"

	"github.com/wonny/alphalens/internal/contracts"
)

// Default periods
const (
	RSIPeriod        = 14
	MACDFast         = 12
	MACDSlow         = 26
	MACDSignalPeriod = 9
	BollingerPeriod  = 20
	BollingerK       = 2.0
	StochKPeriod     = 14
	StochDPeriod     = 3
	WilliamsPeriod   = 14
	ATRPeriod        = 14
	VolatilityPeriod = 20
	VolumePeriod     = 20
)

func last(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	return prices[len(prices)-1]
}

// finite replaces NaN/Inf with fallback
func finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// SMA is the mean of the last period prices.
// Fewer points than period degrades to the latest price (0 when empty).
func SMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return last(prices)
	}
	var sum float64
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return finite(sum/float64(period), last(prices))
}

// EMASeries returns the EMA at every index, seeded with the first price
func EMASeries(prices []float64, period int) []float64 {
	if len(prices) == 0 {
		return nil
	}
	if period <= 0 {
		period = 1
	}
	k := 2.0 / (float64(period) + 1.0)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = prices[i]*k + out[i-1]*(1-k)
	}
	return out
}

// EMA returns the latest exponential moving average (k = 2/(period+1))
func EMA(prices []float64, period int) float64 {
	series := EMASeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return finite(series[len(series)-1], last(prices))
}

// RSI over the trailing period changes (simple averages).
// Returns 50 with fewer than period+1 points and 100 when average loss is 0.
// A perfectly flat window (no gains and no losses) is neutral.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50.0
	}

	var gains, losses float64
	window := prices[len(prices)-period-1:]
	for i := 1; i < len(window); i++ {
		change := window[i] - window[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	if gains == 0 && losses == 0 {
		return 50.0
	}
	if losses == 0 {
		return 100.0
	}

	rs := (gains / float64(period)) / (losses / float64(period))
	return finite(100-(100/(1+rs)), 50.0)
}

// MACD returns EMA(12)-EMA(26), its EMA(9) signal line and the histogram.
// Fewer than 26 points degrades to zeros.
func MACD(prices []float64) (macd, signal, histogram float64) {
	if len(prices) < MACDSlow {
		return 0, 0, 0
	}

	fast := EMASeries(prices, MACDFast)
	slow := EMASeries(prices, MACDSlow)

	// MACD 시리즈는 slow EMA가 충분히 쌓인 시점부터
	series := make([]float64, 0, len(prices)-MACDSlow+1)
	for i := MACDSlow - 1; i < len(prices); i++ {
		series = append(series, fast[i]-slow[i])
	}

	macd = series[len(series)-1]
	signal = EMA(series, MACDSignalPeriod)
	histogram = macd - signal

	return finite(macd, 0), finite(signal, 0), finite(histogram, 0)
}

// StdDev is the population standard deviation of the last period prices
func StdDev(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}
	window := prices[len(prices)-period:]
	mean := SMA(window, period)
	var sq float64
	for _, p := range window {
		d := p - mean
		sq += d * d
	}
	return finite(math.Sqrt(sq/float64(period)), 0)
}

// Bollinger returns (upper, middle, lower) = SMA ± k·stddev.
// Insufficient history degrades to (price, price, price).
func Bollinger(prices []float64, period int, k float64) (upper, middle, lower float64) {
	if period <= 0 || len(prices) < period {
		p := last(prices)
		return p, p, p
	}
	middle = SMA(prices, period)
	sd := StdDev(prices, period)
	return middle + k*sd, middle, middle - k*sd
}

// BandMetrics returns bandwidth ((u-l)/m) and %B ((p-l)/(u-l)).
// A degenerate band gives width 0 and %B 0.5.
func BandMetrics(price, upper, middle, lower float64) (width, percentB float64) {
	if middle != 0 {
		width = (upper - lower) / middle
	}
	percentB = 0.5
	if upper != lower {
		percentB = (price - lower) / (upper - lower)
	}
	return finite(width, 0), finite(percentB, 0.5)
}

func highLow(bars []contracts.Bar) (high, low float64) {
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}

func stochK(bars []contracts.Bar) float64 {
	high, low := highLow(bars)
	if high == low {
		return 50.0
	}
	return (bars[len(bars)-1].Close - low) / (high - low) * 100
}

// Stochastic returns %K over kPeriod and %D as the mean of the last dPeriod %K values.
// Insufficient history gives (50, 50).
func Stochastic(bars []contracts.Bar, kPeriod, dPeriod int) (k, d float64) {
	if kPeriod <= 0 || len(bars) < kPeriod {
		return 50.0, 50.0
	}
	if dPeriod <= 0 {
		dPeriod = 1
	}

	var sum float64
	count := 0
	for offset := 0; offset < dPeriod; offset++ {
		end := len(bars) - offset
		if end < kPeriod {
			break
		}
		v := stochK(bars[end-kPeriod : end])
		if offset == 0 {
			k = v
		}
		sum += v
		count++
	}
	return finite(k, 50), finite(sum/float64(count), 50)
}

// WilliamsR is (highest-close)/(highest-lowest)·-100; -50 when undefined
func WilliamsR(bars []contracts.Bar, period int) float64 {
	if period <= 0 || len(bars) < period {
		return -50.0
	}
	window := bars[len(bars)-period:]
	high, low := highLow(window)
	if high == low {
		return -50.0
	}
	return finite((high-window[len(window)-1].Close)/(high-low)*-100, -50)
}

// ATR is the simple average true range over the last period bars (0 when short)
func ATR(bars []contracts.Bar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}
	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		prevClose := bars[i-1].Close
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
		sum += tr
	}
	return finite(sum/float64(period), 0)
}

// Volatility is the standard deviation of simple daily returns over the last period returns
func Volatility(prices []float64, period int) float64 {
	if len(prices) < 3 || period <= 0 {
		return 0
	}
	start := len(prices) - period - 1
	if start < 0 {
		start = 0
	}

	returns := make([]float64, 0, period)
	for i := start + 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) < 2 {
		return 0
	}
	return StdDev(returns, len(returns))
}

// AverageVolume is the mean volume of the last period bars (fewer if short)
func AverageVolume(bars []contracts.Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	if len(bars) < period {
		period = len(bars)
	}
	var sum float64
	for _, b := range bars[len(bars)-period:] {
		sum += float64(b.Volume)
	}
	return sum / float64(period)
}

// Closes extracts the close series
func Closes(bars []contracts.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Compute recomputes the full IndicatorSet from bars
// ⭐ SSOT: IndicatorSet 생성은 여기서만
func Compute(bars []contracts.Bar) contracts.IndicatorSet {
	closes := Closes(bars)
	price := last(closes)

	set := contracts.IndicatorSet{
		MA5:   SMA(closes, 5),
		MA10:  SMA(closes, 10),
		MA20:  SMA(closes, 20),
		MA50:  SMA(closes, 50),
		MA60:  SMA(closes, 60),
		MA120: SMA(closes, 120),
		MA200: SMA(closes, 200),
		MA250: SMA(closes, 250),
		RSI:   RSI(closes, RSIPeriod),
		Bars:  len(bars),
	}

	set.MACD, set.MACDSignal, set.MACDHistogram = MACD(closes)
	set.StochK, set.StochD = Stochastic(bars, StochKPeriod, StochDPeriod)
	set.WilliamsR = WilliamsR(bars, WilliamsPeriod)

	set.BollingerUpper, set.BollingerMiddle, set.BollingerLower = Bollinger(closes, BollingerPeriod, BollingerK)
	set.BollingerWidth, set.PercentB = BandMetrics(price, set.BollingerUpper, set.BollingerMiddle, set.BollingerLower)

	set.ATR = ATR(bars, ATRPeriod)
	set.Volatility = Volatility(closes, VolatilityPeriod)
	set.AvgVolume20 = AverageVolume(bars, VolumePeriod)

	return set
}
