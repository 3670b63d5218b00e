package naver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/alphalens/internal/contracts"
)

// Company is what the item main page yields: valuation ratios and industry peers
type Company struct {
	Fundamentals contracts.Fundamentals
	Industry     *Industry
}

// Industry is the peer comparison table ("동일업종비교")
type Industry struct {
	Rank        int     // 시가총액 순위 (1 = 최대)
	Size        int     // 비교 종목 수
	MarketShare float64 // 시가총액 비중 %
	Growth      float64 // 비교 종목 평균 영업이익증가율 %
	HasGrowth   bool
}

// FetchCompany fetches the item main page
// ⭐ SSOT: 종목 메인 페이지 파싱은 여기서만
func (c *Client) FetchCompany(ctx context.Context, symbol string) (*Company, error) {
	pageURL := fmt.Sprintf("%s/item/main.naver?code=%s", c.baseURL, symbol)

	body, err := c.fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("company %s: %w", symbol, err)
	}

	company, err := parseCompanyHTML(body, symbol)
	if err != nil {
		return nil, fmt.Errorf("company %s: %w", symbol, err)
	}
	return company, nil
}

func parseCompanyHTML(html []byte, symbol string) (*Company, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	company := &Company{}
	f := &company.Fundamentals

	f.PE = emValue(doc, "#_per")
	f.PB = emValue(doc, "#_pbr")
	f.DividendYield = emValue(doc, "#_dvr")
	f.ROE = latestAnnual(doc, "ROE")
	if debt := latestAnnual(doc, "부채비율"); debt != nil {
		f.DebtToEquity = contracts.Float(*debt / 100)
	}

	company.Industry = parsePeers(doc, symbol)

	if f.PE == nil && f.PB == nil && f.ROE == nil && company.Industry == nil {
		return nil, ErrNoData
	}
	return company, nil
}

func emValue(doc *goquery.Document, selector string) *float64 {
	if v, ok := parseNumber(doc.Find(selector).First().Text()); ok {
		return &v
	}
	return nil
}

// latestAnnual returns the last filled value among the annual columns of the
// financial summary row whose header starts with label
func latestAnnual(doc *goquery.Document, label string) *float64 {
	var out *float64
	doc.Find("div.cop_analysis table tbody tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if !strings.HasPrefix(strings.TrimSpace(row.Find("th").First().Text()), label) {
			return true
		}
		// 연간 4개 열 이후는 분기 실적
		row.Find("td").EachWithBreak(func(j int, cell *goquery.Selection) bool {
			if j >= 4 {
				return false
			}
			if v, ok := parseNumber(cell.Text()); ok {
				out = contracts.Float(v)
			}
			return true
		})
		return false
	})
	return out
}

// parsePeers reads the peer table: header links carry codes, rows carry metrics
func parsePeers(doc *goquery.Document, symbol string) *Industry {
	table := doc.Find("div.trade_compare table").First()
	if table.Length() == 0 {
		return nil
	}

	var codes []string
	table.Find("thead th a").Each(func(i int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		codes = append(codes, codeFromHref(href))
	})
	if len(codes) == 0 {
		return nil
	}

	rows := map[string][]float64{}
	present := map[string][]bool{}
	table.Find("tbody tr").Each(func(i int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("th").First().Text())
		vals := make([]float64, len(codes))
		ok := make([]bool, len(codes))
		row.Find("td").Each(func(j int, cell *goquery.Selection) {
			if j < len(codes) {
				vals[j], ok[j] = parseNumber(cell.Text())
			}
		})
		rows[label] = vals
		present[label] = ok
	})

	caps, capsOK := findRow(rows, present, "시가총액")
	if caps == nil {
		return nil
	}

	self := -1
	for i, code := range codes {
		if code == symbol {
			self = i
		}
	}
	if self < 0 || !capsOK[self] {
		return nil
	}

	type peer struct {
		idx int
		cap float64
	}
	var peers []peer
	total := 0.0
	for i := range codes {
		if capsOK[i] {
			peers = append(peers, peer{i, caps[i]})
			total += caps[i]
		}
	}
	sort.SliceStable(peers, func(a, b int) bool { return peers[a].cap > peers[b].cap })

	ind := &Industry{Size: len(peers)}
	for rank, p := range peers {
		if p.idx == self {
			ind.Rank = rank + 1
		}
	}
	if total > 0 {
		ind.MarketShare = caps[self] / total * 100
	}

	if growth, ok := findRow(rows, present, "영업이익증가율"); growth != nil {
		sum, n := 0.0, 0
		for i, v := range growth {
			if ok[i] {
				sum += v
				n++
			}
		}
		if n > 0 {
			ind.Growth = sum / float64(n)
			ind.HasGrowth = true
		}
	}

	return ind
}

func findRow(rows map[string][]float64, present map[string][]bool, prefix string) ([]float64, []bool) {
	for label, vals := range rows {
		if strings.HasPrefix(label, prefix) {
			return vals, present[label]
		}
	}
	return nil, nil
}

func codeFromHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("code")
}

// MarketContext converts the peer table into the industry part of the market context
func (ind *Industry) MarketContext() *contracts.MarketContext {
	if ind == nil {
		return nil
	}
	mc := &contracts.MarketContext{
		IndustryRank: contracts.Int(ind.Rank),
		IndustrySize: contracts.Int(ind.Size),
		MarketShare:  contracts.Float(ind.MarketShare),
	}
	if ind.HasGrowth {
		mc.IndustryGrowth = contracts.Float(ind.Growth)
	}
	return mc
}
