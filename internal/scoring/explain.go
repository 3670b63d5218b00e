package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wonny/alphalens/internal/analyzers"
	"github.com/wonny/alphalens/internal/contracts"
)

type namedPartial struct {
	name string
	analyzers.Partial
}

func ordered(p analyzers.Partials) []namedPartial {
	return []namedPartial{
		{"fundamental", p.Fundamental},
		{"technical", p.Technical},
		{"sentiment", p.Sentiment},
		{"market", p.Market},
		{"industry", p.Industry},
	}
}

// Explain builds the structured narrative for a composed result
func Explain(r *contracts.CompositeResult, p analyzers.Partials, stale bool) contracts.Explanation {
	parts := ordered(p)

	ranked := make([]namedPartial, len(parts))
	copy(ranked, parts)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	best, worst := ranked[0], ranked[len(ranked)-1]

	var b strings.Builder
	fmt.Fprintf(&b, "Overall rating %.1f/10 (%s, %s risk). ", r.OverallRating, label(string(r.Recommendation)), label(string(r.RiskLevel)))
	fmt.Fprintf(&b, "Strongest component is %s (%.0f), weakest is %s (%.0f). ", best.name, best.Score, worst.name, worst.Score)
	if r.CurrentPrice > 0 {
		fmt.Fprintf(&b, "Target %.2f (%+.0f%%), stop-loss %.2f (-%.0f%%).", r.TargetPrice, r.UpsidePotential, r.StopLossPrice, r.DownsideRisk)
	}

	exp := contracts.Explanation{
		Reasoning:         strings.TrimSpace(b.String()),
		KeyFactors:        []string{},
		ConfidenceFactors: []string{},
		RiskFactors:       []string{},
	}

	for _, part := range parts {
		exp.KeyFactors = append(exp.KeyFactors, part.Factors...)
		exp.RiskFactors = append(exp.RiskFactors, part.Risks...)
		exp.ConfidenceFactors = append(exp.ConfidenceFactors,
			fmt.Sprintf("%s confidence %d%%", part.name, part.Confidence))
	}

	if stale {
		exp.RiskFactors = append(exp.RiskFactors, "market data served from cache after provider failure")
		exp.ConfidenceFactors = append(exp.ConfidenceFactors, "stale snapshot")
	}
	if len(exp.KeyFactors) == 0 {
		exp.KeyFactors = append(exp.KeyFactors, fmt.Sprintf("%s score %.0f", best.name, best.Score))
	}

	return exp
}

func label(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}
