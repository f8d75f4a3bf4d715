package rarity

import (
	"sort"

	"github.com/nftsnap/nftsnap/pkg/token"
)

// TraitRarity holds the frequency of every value of one trait, plus the
// share of traited tokens that were not counted under the trait at all.
type TraitRarity struct {
	Values  map[string]float64
	Missing float64
}

// Of returns the rarity of value, falling back to Missing.
func (r TraitRarity) Of(value string) float64 {
	if v, ok := r.Values[value]; ok {
		return v
	}
	return r.Missing
}

// Rarities maps trait name to its value frequencies.
type Rarities map[string]TraitRarity

// ComputeRarities divides every count by total. A zero total yields no rarities.
func ComputeRarities(total int, counts Counts) Rarities {
	out := Rarities{}
	if total <= 0 {
		return out
	}
	for trait, values := range counts {
		tr := TraitRarity{Values: make(map[string]float64, len(values))}
		sum := 0
		for value, n := range values {
			tr.Values[value] = float64(n) / float64(total)
			sum += n
		}
		tr.Missing = float64(total-sum) / float64(total)
		out[trait] = tr
	}
	return out
}

// Result is the outcome of one rarity computation.
type Result struct {
	Traits   *TraitMap
	Total    int
	Counts   Counts
	Rarities Rarities
	// Scores and Ranks only hold tokens with at least one trait.
	Scores map[string]float64
	Ranks  map[string]int
	// Ranked lists those tokens from rarest to most common.
	Ranked []string
}

// Score is the product of a token's value rarity over every trait in the map.
func (r *Result) Score(t *token.Token) float64 {
	score := 1.0
	for _, name := range r.Traits.names {
		value, _ := t.Traits.Get(name)
		score *= r.Rarities[name].Of(value)
	}
	return score
}

// Compute builds the trait map, counts, rarities, scores and ranks for
// tokens, which must be in collection order. Tokens with equal scores still
// get distinct consecutive ranks, in collection order.
func Compute(tokens []*token.Token) *Result {
	traits := BuildTraitMap(tokens)
	total, counts := CountTraits(traits, tokens)
	res := &Result{
		Traits:   traits,
		Total:    total,
		Counts:   counts,
		Rarities: ComputeRarities(total, counts),
		Scores:   map[string]float64{},
		Ranks:    map[string]int{},
	}

	for _, t := range tokens {
		if !t.HasTraits() {
			continue
		}
		res.Scores[t.Token] = res.Score(t)
		res.Ranked = append(res.Ranked, t.Token)
	}
	sort.SliceStable(res.Ranked, func(i, j int) bool {
		return res.Scores[res.Ranked[i]] < res.Scores[res.Ranked[j]]
	})
	for i, addr := range res.Ranked {
		res.Ranks[addr] = i + 1
	}
	return res
}

// Apply writes rarity and rank onto the collection. Tokens without traits
// have both cleared.
func (r *Result) Apply(coll *token.Collection) {
	for _, addr := range coll.Addresses() {
		score, ok := r.Scores[addr]
		rank := r.Ranks[addr]
		coll.Update(addr, func(t *token.Token) {
			if !ok {
				t.Rarity, t.Rank = nil, nil
				return
			}
			s, rk := score, rank
			t.Rarity, t.Rank = &s, &rk
		})
	}
}
