// Package report renders an enriched collection for humans: holder
// distribution, trait frequencies, the CSV snapshot and a single-token view.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/nftsnap/nftsnap/pkg/token"
)

// MarketplaceWallets names the escrow wallets of known marketplaces.
var MarketplaceWallets = map[string]string{
	"GUfCR9mK6azb9vcpsxgXyj7XRPAKJd4KMHTTVvtncGgp": "MagicEden",
	"3D49QorJyNaL4rcpiynbuS3pRH4Y7EXEM6v6ZGaqfFGK": "Solanart",
	"4pUQS4Jo2dsfWzt3VgHXy3H6RYnEDd11oWPiaM2rdAPw": "AlphaArt",
	"F4ghBzHFNgJxV4wEQDchU5i7n4XWWMBSaq7CuswGiVsr": "DigitalEyes",
}

// Entry is one key with its count.
type Entry struct {
	Key   string
	Count int
}

// SortByValues orders counts by value, breaking ties by key. desc reverses
// both orderings.
func SortByValues(counts map[string]int, desc bool) []Entry {
	entries := lo.MapToSlice(counts, func(k string, v int) Entry {
		return Entry{Key: k, Count: v}
	})
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Count != b.Count {
			return (a.Count < b.Count) != desc
		}
		return (a.Key < b.Key) != desc
	})
	return entries
}

// HolderCounts counts tokens per holder wallet. Tokens with no known holder
// are counted under "".
func HolderCounts(tokens []*token.Token) map[string]int {
	byHolder := lo.GroupBy(tokens, func(t *token.Token) string {
		return t.Holder()
	})
	return lo.MapValues(byHolder, func(ts []*token.Token, _ string) int {
		return len(ts)
	})
}

// FormatBiggestHolders lists wallets from largest to smallest holding,
// naming known marketplace wallets.
func FormatBiggestHolders(total int, counts map[string]int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nTotal tokens: %d\n", total)
	fmt.Fprintf(&b, "Total Holder Wallets: %d\n", len(counts))
	b.WriteString("\nBiggest holders:\n----------\n")
	for _, e := range SortByValues(counts, true) {
		suffix := ""
		if name, ok := MarketplaceWallets[e.Key]; ok {
			suffix = " (" + name + ")"
		}
		fmt.Fprintf(&b, "%s: %d%s\n", e.Key, e.Count, suffix)
	}
	return b.String()
}
