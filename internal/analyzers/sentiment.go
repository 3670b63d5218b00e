package analyzers

import (
	"context"
	"strings"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/pkg/logger"
)

// 신뢰도 최대치에 필요한 뉴스 건수
const sentimentInputs = 10

var positiveKeywords = []string{
	"상승", "급등", "호재", "최대", "흑자", "돌파", "수주", "개선", "성장", "상향", "신고가", "매수",
	"surge", "beat", "record", "upgrade", "growth", "profit", "rally", "outperform", "gains",
}

var negativeKeywords = []string{
	"하락", "급락", "악재", "적자", "감소", "우려", "하향", "손실", "리콜", "소송", "매도", "부진",
	"plunge", "miss", "downgrade", "loss", "lawsuit", "recall", "decline", "cuts", "weak",
}

// SentimentDetails are the labelled news counts
type SentimentDetails struct {
	Positive int
	Negative int
	Neutral  int
	Total    int
}

// SentimentAnalyzer scores the positive/negative skew of recent news
// ⭐ SSOT: 뉴스 감성 점수 계산은 여기서만
type SentimentAnalyzer struct {
	logger *logger.Logger
}

// NewSentimentAnalyzer creates a new sentiment analyzer
func NewSentimentAnalyzer(log *logger.Logger) *SentimentAnalyzer {
	return &SentimentAnalyzer{logger: log}
}

// Analyze returns 50 + 50·(pos−neg)/total
func (a *SentimentAnalyzer) Analyze(ctx context.Context, symbol string, news []contracts.NewsItem) (Partial, SentimentDetails) {
	d := SentimentDetails{Total: len(news)}
	for _, item := range news {
		switch Classify(item) {
		case contracts.SentimentPositive:
			d.Positive++
		case contracts.SentimentNegative:
			d.Negative++
		default:
			d.Neutral++
		}
	}

	score := 50.0
	if d.Total > 0 {
		score = 50 + 50*float64(d.Positive-d.Negative)/float64(d.Total)
	}

	present := d.Total
	if present > sentimentInputs {
		present = sentimentInputs
	}

	p := newPartial(score, present, sentimentInputs)
	switch {
	case d.Total == 0:
		p.Risks = append(p.Risks, "no recent news coverage")
	case d.Positive > d.Negative:
		p.Factors = append(p.Factors, "positive news flow")
	case d.Negative > d.Positive:
		p.Risks = append(p.Risks, "negative news flow")
	}

	a.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"positive": d.Positive,
		"negative": d.Negative,
		"total":    d.Total,
		"score":    p.Score,
	}).Debug("Calculated sentiment score")

	return p, d
}

// Classify returns the provider label, or a keyword-lexicon label when absent
func Classify(item contracts.NewsItem) contracts.SentimentLabel {
	if item.Sentiment != nil {
		return *item.Sentiment
	}

	text := strings.ToLower(item.Title + " " + item.Summary)
	balance := 0
	for _, kw := range positiveKeywords {
		if strings.Contains(text, kw) {
			balance++
		}
	}
	for _, kw := range negativeKeywords {
		if strings.Contains(text, kw) {
			balance--
		}
	}

	switch {
	case balance > 0:
		return contracts.SentimentPositive
	case balance < 0:
		return contracts.SentimentNegative
	default:
		return contracts.SentimentNeutral
	}
}
