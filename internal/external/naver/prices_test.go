package naver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wonny/alphalens/pkg/httputil"
	"github.com/wonny/alphalens/pkg/logger"
)

const chartBody = `[['날짜', '시가', '고가', '저가', '종가', '거래량', '외국인소진율'],
["20240116", 72500, 73500, 72300, 73000, 1200000, 52.1],
["20240115", 72300, 73000, 72000, 72500, 1000000, 52.0]
]`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewNop()
	return NewClient(httputil.New(log).DisableRetry(), server.URL, server.URL, log)
}

func TestParseBars(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"chart json with header", chartBody, 2},
		{"string numbers", `[["20240115", "72300", "73000", "72000", "72500", "1000000"]]`, 1},
		{"regex fallback", `garbage [["20240115", 72300, 73000, 72000, 72500, 1000000] trailing`, 1},
		{"insufficient columns", `[["20240115", 72300, 73000]]`, 0},
		{"zero close dropped", `[["20240115", 0, 0, 0, 0, 0]]`, 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBars(tt.body)
			if len(got) != tt.want {
				t.Fatalf("parseBars() got %d bars, want %d", len(got), tt.want)
			}
			for i := 1; i < len(got); i++ {
				if !got[i-1].Date.Before(got[i].Date) {
					t.Errorf("bars not ascending at %d", i)
				}
			}
		})
	}
}

func TestParseBars_Values(t *testing.T) {
	bars := parseBars(chartBody)
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}

	first := bars[0]
	if !first.Date.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v, want 2024-01-15", first.Date)
	}
	if first.Open != 72300 || first.High != 73000 || first.Low != 72000 || first.Close != 72500 {
		t.Errorf("OHLC = %+v", first)
	}
	if first.Volume != 1000000 {
		t.Errorf("Volume = %d, want 1000000", first.Volume)
	}
}

func TestQuoteFromBars(t *testing.T) {
	bars := parseBars(chartBody)

	q := QuoteFromBars("005930", bars)
	if q.Price != 73000 {
		t.Errorf("Price = %v, want 73000", q.Price)
	}
	if q.Change != 500 {
		t.Errorf("Change = %v, want 500", q.Change)
	}
	if diff := q.ChangeRate - 500.0/72500*100; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ChangeRate = %v", q.ChangeRate)
	}

	if QuoteFromBars("005930", nil) != nil {
		t.Error("expected nil quote without bars")
	}
}

func TestFetchBars(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/siseJson.naver" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "005930" {
			t.Errorf("symbol = %s", got)
		}
		if got := r.URL.Query().Get("startTime"); got != "20240101" {
			t.Errorf("startTime = %s", got)
		}
		if !strings.HasSuffix(r.Header.Get("Referer"), "/") {
			t.Errorf("missing referer")
		}
		if r.URL.Query().Get("symbol") == "005930" {
			_, _ = w.Write([]byte(chartBody))
		}
	})

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	bars, err := c.FetchBars(context.Background(), "005930", from, to)
	if err != nil {
		t.Fatalf("FetchBars() error = %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("got %d bars, want 2", len(bars))
	}
}

func TestFetchBars_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[['날짜', '시가', '고가', '저가', '종가', '거래량']]`))
	})

	_, err := c.FetchBars(context.Background(), "999999", time.Now().AddDate(0, 0, -5), time.Now())
	if !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
}

func TestFetchBars_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.FetchBars(context.Background(), "005930", time.Now().AddDate(0, 0, -5), time.Now())
	var statusErr *httputil.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", statusErr.StatusCode)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"72,500", 72500, true},
		{" +1.25% ", 1.25, true},
		{"12.3배", 12.3, true},
		{"-3.5", -3.5, true},
		{"-", 0, false},
		{"", 0, false},
		{"N/A", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseNumber(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("parseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
