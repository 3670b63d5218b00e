package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
)

var priceRowRe = regexp.MustCompile(`\["(\d{8})",\s*([\d.]+),\s*([\d.]+),\s*([\d.]+),\s*([\d.]+),\s*(\d+)`)

// FetchBars fetches daily candles between from and to, oldest first
// ⭐ SSOT: Naver 차트 API 호출은 이 함수에서만
func (c *Client) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error) {
	url := fmt.Sprintf(
		"%s/siseJson.naver?symbol=%s&requestType=1&startTime=%s&endTime=%s&timeframe=day",
		c.chartURL, symbol, from.Format("20060102"), to.Format("20060102"),
	)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("bars %s: %w", symbol, err)
	}

	bars := parseBars(string(body))
	if len(bars) == 0 {
		return nil, fmt.Errorf("bars %s: %w", symbol, ErrNoData)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

// FetchQuote derives the latest quote from the two most recent daily candles
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*contracts.Quote, error) {
	to := time.Now()
	bars, err := c.FetchBars(ctx, symbol, to.AddDate(0, 0, -14), to)
	if err != nil {
		return nil, err
	}
	return QuoteFromBars(symbol, bars), nil
}

// QuoteFromBars builds a quote from the last candle and its predecessor
func QuoteFromBars(symbol string, bars []contracts.Bar) *contracts.Quote {
	if len(bars) == 0 {
		return nil
	}
	last := bars[len(bars)-1]
	q := &contracts.Quote{
		Symbol:    symbol,
		Price:     last.Close,
		Volume:    last.Volume,
		Timestamp: last.Date,
	}
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		q.Change = last.Close - prev
		if prev > 0 {
			q.ChangeRate = q.Change / prev * 100
		}
	}
	return q
}

// parseBars accepts the single-quoted JSON the chart API returns; falls back to regex
func parseBars(body string) []contracts.Bar {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "'", "\"")

	var rows [][]interface{}
	var bars []contracts.Bar
	if err := json.Unmarshal([]byte(body), &rows); err == nil {
		bars = parseBarRows(rows)
	} else {
		bars = parseBarRegex(body)
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars
}

// parseBarRows reads [date, open, high, low, close, volume, ...]; the header row is skipped
func parseBarRows(rows [][]interface{}) []contracts.Bar {
	var bars []contracts.Bar
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		dateStr, ok := row[0].(string)
		if !ok {
			continue
		}
		date, err := time.Parse("20060102", strings.TrimSpace(dateStr))
		if err != nil {
			continue // 헤더
		}

		bar := contracts.Bar{
			Date:   date,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: int64(toFloat(row[5])),
		}
		if bar.Close <= 0 {
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

func parseBarRegex(body string) []contracts.Bar {
	var bars []contracts.Bar
	for _, m := range priceRowRe.FindAllStringSubmatch(body, -1) {
		date, err := time.Parse("20060102", m[1])
		if err != nil {
			continue
		}
		open, _ := strconv.ParseFloat(m[2], 64)
		high, _ := strconv.ParseFloat(m[3], 64)
		low, _ := strconv.ParseFloat(m[4], 64)
		closePrice, _ := strconv.ParseFloat(m[5], 64)
		volume, _ := strconv.ParseInt(m[6], 10, 64)

		if closePrice <= 0 {
			continue
		}
		bars = append(bars, contracts.Bar{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	return bars
}

// toFloat converts the mixed JSON cell types to float64
func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}
