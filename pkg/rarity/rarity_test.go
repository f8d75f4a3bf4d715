package rarity

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftsnap/nftsnap/pkg/token"
)

func tok(addr string, traits ...string) *token.Token {
	t := token.New(addr)
	if traits != nil {
		t.Traits = token.Traits{}
	}
	for i := 0; i+1 < len(traits); i += 2 {
		t.Traits = t.Traits.Set(traits[i], traits[i+1])
	}
	return t
}

func fixture() []*token.Token {
	return []*token.Token{
		tok("token_1", "hair", "white", "eyes", "blue"),
		tok("token_2", "hair", "white", "eyes", ""),
		tok("token_3", "jacket", "yes"),
	}
}

func TestBuildTraitMap(t *testing.T) {
	m := BuildTraitMap(append(fixture(), tok("token_4")))
	assert.Equal(t, []string{"hair", "eyes", "jacket"}, m.Names())
	assert.Equal(t, 3, m.Len())
	i, ok := m.Index("jacket")
	assert.True(t, ok)
	assert.Equal(t, 2, i)
	assert.Equal(t, []string{"", "", "yes"}, m.Row(fixture()[2]))
}

func TestCountAttributes(t *testing.T) {
	total, counts := CountAttributes(append(fixture(), tok("untraited"), tok("fetched-empty", []string{}...)))
	assert.Equal(t, 3, total)
	assert.Equal(t, Counts{
		"hair":   {"white": 2},
		"eyes":   {"blue": 1, "": 1},
		"jacket": {"yes": 1},
	}, counts)
}

func TestCountTraits(t *testing.T) {
	tokens := fixture()
	total, counts := CountTraits(BuildTraitMap(tokens), tokens)
	assert.Equal(t, 3, total)
	assert.Equal(t, Counts{
		"hair":   {"white": 2, "": 1},
		"eyes":   {"blue": 1, "": 2},
		"jacket": {"yes": 1, "": 2},
	}, counts)
	assert.Equal(t, 3, counts.Sum("eyes"))
	assert.Equal(t, 0, counts.Get("eyes", "green"))
}

func TestComputeRarities(t *testing.T) {
	r := ComputeRarities(3, Counts{
		"hair":   {"white": 2, "": 1},
		"eyes":   {"blue": 1, "": 2},
		"jacket": {"yes": 1, "": 2},
	})
	assert.InDelta(t, 2.0/3, r["hair"].Values["white"], 1e-12)
	assert.InDelta(t, 1.0/3, r["hair"].Values[""], 1e-12)
	assert.Equal(t, 0.0, r["hair"].Missing)
	assert.InDelta(t, 1.0/3, r["jacket"].Of("yes"), 1e-12)

	assert.Empty(t, ComputeRarities(0, Counts{"hair": {"white": 1}}))
}

func TestComputeRarities_SumToOne(t *testing.T) {
	total, counts := CountAttributes(fixture())
	rarities := ComputeRarities(total, counts)
	for trait, tr := range rarities {
		sum := tr.Missing
		for _, v := range tr.Values {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9, trait)
	}
	assert.InDelta(t, 2.0/3, rarities["jacket"].Missing, 1e-12)
	assert.InDelta(t, 1.0/3, rarities["eyes"].Of("green"), 1e-12, "unseen values fall back to missing")
}

func TestCompute(t *testing.T) {
	res := Compute(fixture())

	assert.Equal(t, 3, res.Total)
	assert.InDelta(t, 0.14814814814814814, res.Scores["token_1"], 1e-15)
	assert.InDelta(t, 0.2962962962962963, res.Scores["token_2"], 1e-15)
	assert.InDelta(t, 0.07407407407407407, res.Scores["token_3"], 1e-15)
	assert.Equal(t, map[string]int{"token_1": 2, "token_2": 3, "token_3": 1}, res.Ranks)
	assert.Equal(t, []string{"token_3", "token_1", "token_2"}, res.Ranked)
}

func TestCompute_ExcludesTokensWithoutTraits(t *testing.T) {
	tokens := append(fixture(), tok("unfetched"), tok("empty", []string{}...))
	res := Compute(tokens)

	assert.NotContains(t, res.Scores, "unfetched")
	assert.NotContains(t, res.Scores, "empty")
	assert.Len(t, res.Ranked, 3)
}

func TestCompute_TiesGetDistinctRanksInCollectionOrder(t *testing.T) {
	tokens := []*token.Token{
		tok("b", "hat", "red"),
		tok("a", "hat", "red"),
		tok("c", "hat", "blue"),
		tok("d", "hat", "green"),
	}
	res := Compute(tokens)

	require.Equal(t, res.Scores["b"], res.Scores["a"])
	require.Equal(t, res.Scores["c"], res.Scores["d"])
	// blue and green tie at 1/4, red ties at 2/4. No rank is shared.
	assert.Equal(t, map[string]int{"c": 1, "d": 2, "b": 3, "a": 4}, res.Ranks)
}

func TestCompute_RanksArePermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	values := []string{"a", "b", "c", "d", ""}
	var tokens []*token.Token
	for i := 0; i < 200; i++ {
		var traits []string
		for _, name := range []string{"hat", "eyes", "bg"} {
			if rng.Intn(4) > 0 {
				traits = append(traits, name, values[rng.Intn(len(values))])
			}
		}
		if traits == nil && i%2 == 0 {
			traits = []string{}
		}
		tokens = append(tokens, tok(string(rune('A'+i%26))+string(rune('0'+i/26)), traits...))
	}

	res := Compute(tokens)
	k := 0
	for _, t := range tokens {
		if t.HasTraits() {
			k++
		}
	}
	ranks := make([]int, 0, len(res.Ranks))
	for _, r := range res.Ranks {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	require.Len(t, ranks, k)
	for i, r := range ranks {
		assert.Equal(t, i+1, r)
	}
	for i := 1; i < len(res.Ranked); i++ {
		assert.LessOrEqual(t, res.Scores[res.Ranked[i-1]], res.Scores[res.Ranked[i]])
	}
}

func TestApply(t *testing.T) {
	tokens := append(fixture(), tok("untraited"))
	coll := token.FromTokens(tokens)
	stale := 0.5
	coll.Update("untraited", func(t *token.Token) { t.Rarity = &stale })

	Compute(coll.Tokens()).Apply(coll)

	t3, _ := coll.Get("token_3")
	require.NotNil(t, t3.Rank)
	assert.Equal(t, 1, *t3.Rank)
	assert.InDelta(t, 0.07407407407407407, *t3.Rarity, 1e-15)

	u, _ := coll.Get("untraited")
	assert.Nil(t, u.Rarity)
	assert.Nil(t, u.Rank)
}
