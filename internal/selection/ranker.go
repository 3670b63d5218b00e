package selection

import (
	"sort"

	"github.com/wonny/alphalens/internal/contracts"
)

// RankedInstrument is one surviving instrument with its 1-based rank
type RankedInstrument struct {
	Rank   int                        `json:"rank"`
	Symbol string                     `json:"symbol"`
	Result *contracts.CompositeResult `json:"result"`
}

// Rank sorts by overall rating descending and assigns ranks.
// Ties keep input order.
// ⭐ SSOT: 순위 산정은 여기서만
func Rank(items []RankedInstrument) []RankedInstrument {
	ranked := make([]RankedInstrument, len(items))
	copy(ranked, items)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Result.OverallRating > ranked[j].Result.OverallRating
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
