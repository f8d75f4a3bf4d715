package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/nftsnap/nftsnap/pkg/rarity"
)

// FormatTraitFrequency lists every trait's values from least to most common
// with their share of total. Traits print in the given order; traits present
// in counts but not listed follow in name order.
func FormatTraitFrequency(total int, traits []string, counts rarity.Counts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%d tokens with metadata\n", total)
	b.WriteString("\nAttributes:\n----------\n")

	extra := lo.Without(lo.Keys(counts), traits...)
	sort.Strings(extra)
	for _, trait := range append(lo.Filter(traits, func(name string, _ int) bool {
		_, ok := counts[name]
		return ok
	}), extra...) {
		fmt.Fprintf(&b, "\n%s\n", trait)
		for _, e := range SortByValues(counts[trait], false) {
			share := 0.0
			if total > 0 {
				share = float64(e.Count) / float64(total)
			}
			fmt.Fprintf(&b, "%s: %d (%d/%d, %.6f)\n", e.Key, e.Count, e.Count, total, share)
		}
	}
	return b.String()
}
