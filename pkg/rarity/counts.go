// Package rarity computes trait frequencies, per-token composite rarity and
// ranks over an enriched collection. Everything here is pure.
package rarity

import (
	"github.com/nftsnap/nftsnap/pkg/token"
)

// TraitMap assigns every trait name seen in the collection an ordinal, by
// first appearance in collection order.
type TraitMap struct {
	names []string
	index map[string]int
}

// BuildTraitMap scans tokens in order.
func BuildTraitMap(tokens []*token.Token) *TraitMap {
	m := &TraitMap{index: map[string]int{}}
	for _, t := range tokens {
		for _, tr := range t.Traits {
			if _, ok := m.index[tr.Name]; ok {
				continue
			}
			m.index[tr.Name] = len(m.names)
			m.names = append(m.names, tr.Name)
		}
	}
	return m
}

// Names returns the trait names in ordinal order.
func (m *TraitMap) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// Len is the number of distinct traits.
func (m *TraitMap) Len() int { return len(m.names) }

// Index returns the ordinal of name.
func (m *TraitMap) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// Row aligns a token's traits to the map. Absent traits are "".
func (m *TraitMap) Row(t *token.Token) []string {
	row := make([]string, len(m.names))
	for _, tr := range t.Traits {
		if i, ok := m.index[tr.Name]; ok {
			row[i] = tr.Value
		}
	}
	return row
}

// Counts maps trait name to value to number of tokens.
type Counts map[string]map[string]int

// Add increments the count of value under trait.
func (c Counts) Add(trait, value string) {
	values, ok := c[trait]
	if !ok {
		values = map[string]int{}
		c[trait] = values
	}
	values[value]++
}

// Get returns the count of value under trait, zero when never seen.
func (c Counts) Get(trait, value string) int {
	return c[trait][value]
}

// Sum is the number of tokens counted under trait.
func (c Counts) Sum(trait string) int {
	n := 0
	for _, v := range c[trait] {
		n += v
	}
	return n
}

// CountAttributes counts the trait values tokens actually carry. total is
// the number of tokens with at least one trait.
func CountAttributes(tokens []*token.Token) (total int, counts Counts) {
	counts = Counts{}
	for _, t := range tokens {
		if !t.HasTraits() {
			continue
		}
		total++
		for _, tr := range t.Traits {
			counts.Add(tr.Name, tr.Value)
		}
	}
	return total, counts
}

// CountTraits counts like CountAttributes but also counts "" for every
// token that has traits yet lacks one in traits.
func CountTraits(traits *TraitMap, tokens []*token.Token) (total int, counts Counts) {
	counts = Counts{}
	for _, t := range tokens {
		if !t.HasTraits() {
			continue
		}
		total++
		for _, name := range traits.names {
			value, _ := t.Traits.Get(name)
			counts.Add(name, value)
		}
	}
	return total, counts
}
