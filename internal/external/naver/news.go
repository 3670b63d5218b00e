package naver

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/alphalens/internal/contracts"
)

// 뉴스 목록 날짜 형식 (KST)
const newsDateLayout = "2006.01.02 15:04"

var kst = time.FixedZone("KST", 9*60*60)

// FetchNews fetches the first page of headlines for a symbol.
// Sentiment is left unlabeled; the sentiment analyzer classifies titles.
func (c *Client) FetchNews(ctx context.Context, symbol string) ([]contracts.NewsItem, error) {
	url := fmt.Sprintf("%s/item/news_news.naver?code=%s&page=1", c.baseURL, symbol)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}

	items, err := c.parseNewsHTML(body)
	if err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(items),
	}).Debug("Fetched news")
	return items, nil
}

// parseNewsHTML reads table.type5 rows; related-article groups are skipped
func (c *Client) parseNewsHTML(html []byte) ([]contracts.NewsItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var items []contracts.NewsItem
	doc.Find("table.type5 tr").Each(func(i int, row *goquery.Selection) {
		if row.ParentsFiltered("tr.relation_lst").Length() > 0 || row.HasClass("relation_lst") {
			return
		}

		link := row.Find("td.title a").First()
		title := strings.TrimSpace(link.Text())
		if title == "" {
			return
		}

		item := contracts.NewsItem{
			Title:  title,
			Source: strings.TrimSpace(row.Find("td.info").First().Text()),
		}
		if href, ok := link.Attr("href"); ok {
			item.URL = c.absolute(href)
		}
		if t, err := time.ParseInLocation(newsDateLayout, strings.TrimSpace(row.Find("td.date").First().Text()), kst); err == nil {
			item.PublishedAt = t
		}
		items = append(items, item)
	})

	return items, nil
}

func (c *Client) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return c.baseURL + "/" + strings.TrimLeft(href, "/")
}
