package ui

import (
	"sort"
	"strings"

	"github.com/conduit-lang/restgen/internal/orm/dialect"
)

// maxSuggestionCost allows about two edits
const maxSuggestionCost = 2 * dialect.SubstituteCost

// FindSimilar returns up to three candidates close to target, closest first.
// Matching ignores case.
func FindSimilar(target string, candidates []string) []string {
	type match struct {
		value string
		cost  int64
	}

	var matches []match
	for _, c := range candidates {
		cost := dialect.EditDistance(strings.ToLower(target), strings.ToLower(c))
		if cost <= maxSuggestionCost {
			matches = append(matches, match{c, cost})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].cost < matches[j].cost })

	var out []string
	for i := 0; i < len(matches) && i < 3; i++ {
		out = append(out, matches[i].value)
	}
	return out
}
