package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/nftsnap/nftsnap/pkg/rarity"
	"github.com/nftsnap/nftsnap/pkg/token"
)

// UnknownAddress stands in for a blank holder in the snapshot.
const UnknownAddress = "UNKNOWN_ADDRESS"

// SnapshotHeader returns the snapshot columns for the given trait map.
func SnapshotHeader(traits *rarity.TraitMap) []string {
	return append([]string{"Number", "TokenName", "Token", "HolderAddress", "TotalHeld", "Image", "Rank", "Rarity"}, traits.Names()...)
}

// SnapshotRows renders one row per token in collection order. Rank and
// rarity are blank for tokens that were not ranked.
func SnapshotRows(tokens []*token.Token, traits *rarity.TraitMap) [][]string {
	rows := make([][]string, 0, len(tokens))
	for _, t := range tokens {
		holder := t.Holder()
		if holder == "" {
			holder = UnknownAddress
		}
		rank, score := "", ""
		if t.Rank != nil {
			rank = strconv.Itoa(*t.Rank)
		}
		if t.Rarity != nil {
			score = strconv.FormatFloat(*t.Rarity, 'g', -1, 64)
		}
		row := []string{
			t.ID,
			t.DisplayName(),
			t.Token,
			holder,
			strconv.FormatUint(t.Amount, 10),
			t.Image,
			rank,
			score,
		}
		rows = append(rows, append(row, traits.Row(t)...))
	}
	return rows
}

// WriteSnapshotCSV writes the header and rows as RFC 4180 CSV.
func WriteSnapshotCSV(w io.Writer, tokens []*token.Token, traits *rarity.TraitMap) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SnapshotHeader(traits)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(SnapshotRows(tokens, traits)); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// FormatTokenRarity renders one token's traits with the share of the
// collection carrying each value, followed by its composite rarity and rank.
func FormatTokenRarity(t *token.Token, res *rarity.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("%s (%s)", t.DisplayName(), t.Token)
	tw.AppendHeader(table.Row{"Trait", "Value", "Count", "Rarity"})

	for _, name := range res.Traits.Names() {
		value, _ := t.Traits.Get(name)
		shown := value
		if shown == "" {
			shown = "(none)"
		}
		tw.AppendRow(table.Row{
			name,
			shown,
			res.Counts.Get(name, value),
			fmt.Sprintf("%.6f", res.Rarities[name].Of(value)),
		})
	}

	rank, score := "-", "-"
	if r, ok := res.Ranks[t.Token]; ok {
		rank = fmt.Sprintf("%d / %d", r, len(res.Ranked))
		score = strconv.FormatFloat(res.Scores[t.Token], 'g', 6, 64)
	}
	tw.AppendFooter(table.Row{"Rank", rank, "Rarity", score})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	return tw.Render()
}
