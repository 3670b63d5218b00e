package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/selection"
)

// FormatTask renders a task outcome as plain text
func FormatTask(task *contracts.AnalysisTask) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s %s analysis: %s\n", task.Symbol, task.Kind, task.State))
	if task.Error != "" {
		b.WriteString(fmt.Sprintf("Error: %s\n", task.Error))
	}

	r := task.Result
	if r == nil {
		return b.String()
	}

	b.WriteString(fmt.Sprintf("Rating: %.1f/10 (%s, risk %s, confidence %d%%)\n",
		r.OverallRating, r.Recommendation, r.RiskLevel, r.ConfidenceLevel))
	b.WriteString(fmt.Sprintf("Price: %.2f | Target: %.2f (%+.0f%%) | Stop: %.2f (-%.0f%%)\n",
		r.CurrentPrice, r.TargetPrice, r.UpsidePotential, r.StopLossPrice, r.DownsideRisk))
	if r.Explanation.Reasoning != "" {
		b.WriteString(r.Explanation.Reasoning)
		b.WriteString("\n")
	}
	if r.Fallback {
		b.WriteString("Note: neutral result, market data was unavailable\n")
	}
	return b.String()
}

// DailyReportMessage builds the scheduled top-picks summary
func DailyReportMessage(userID string, sel *selection.Selection, topN int) Message {
	var b strings.Builder

	date := sel.GeneratedAt.Format("2006-01-02")
	b.WriteString(fmt.Sprintf("Daily report %s: %d of %d instruments passed\n", date, len(sel.Ranked), sel.Universe))

	top := sel.Top(topN)
	if len(top) == 0 {
		b.WriteString("No instrument met the screening criteria\n")
	}
	for _, item := range top {
		r := item.Result
		b.WriteString(fmt.Sprintf("%d. %s  %.1f  %s  upside %+.0f%%  risk %s\n",
			item.Rank, item.Symbol, r.OverallRating, r.Recommendation, r.UpsidePotential, r.RiskLevel))
	}
	if len(sel.Skipped) > 0 {
		b.WriteString(fmt.Sprintf("Skipped: %d\n", len(sel.Skipped)))
	}

	return Message{
		UserID: userID,
		Kind:   KindDailyReport,
		Title:  "Daily report " + date,
		Text:   b.String(),
		SentAt: time.Now(),
	}
}
