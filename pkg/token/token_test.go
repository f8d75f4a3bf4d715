package token

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromName(t *testing.T) {
	assert.Equal(t, "1234", IDFromName("Mindfolk #1234"))
	assert.Equal(t, "b#c", IDFromName("a#b#c"))
	assert.Equal(t, "Pirate", IDFromName("Pirate"))
	assert.Equal(t, "", IDFromName(""))
}

func TestTraits_SetKeepsOrderAndUniqueness(t *testing.T) {
	var ts Traits
	ts = ts.Set("hair", "white")
	ts = ts.Set("eyes", "blue")
	ts = ts.Set("hair", "black")

	assert.Equal(t, Traits{{"hair", "black"}, {"eyes", "blue"}}, ts)
	v, ok := ts.Get("eyes")
	assert.True(t, ok)
	assert.Equal(t, "blue", v)
	_, ok = ts.Get("jacket")
	assert.False(t, ok)
}

func TestToken_SetHolder(t *testing.T) {
	tok := New("mint")
	tok.SetHolder("", 5)
	require.NotNil(t, tok.HolderAddress)
	assert.Equal(t, "", *tok.HolderAddress)
	assert.Equal(t, uint64(0), tok.Amount)

	tok.SetHolder("wallet", 1)
	assert.Equal(t, "wallet", tok.Holder())
	assert.Equal(t, uint64(1), tok.Amount)
}

func TestToken_CloneIsDeep(t *testing.T) {
	tok := New("mint")
	tok.SetName("Thing #7")
	tok.Traits = Traits{{"hair", "white"}}
	r := 0.5
	tok.Rarity = &r

	c := tok.Clone()
	*c.Name = "changed"
	c.Traits[0].Value = "black"
	*c.Rarity = 0.1

	assert.Equal(t, "Thing #7", tok.DisplayName())
	assert.Equal(t, "white", tok.Traits[0].Value)
	assert.Equal(t, 0.5, *tok.Rarity)
	assert.Equal(t, "7", c.ID)
}

func TestCollection_OrderAndUniqueness(t *testing.T) {
	c := NewCollection()
	assert.Equal(t, 3, c.EnsureAll([]string{"b", "a", "c"}))
	assert.Equal(t, 1, c.EnsureAll([]string{"a", "d"}))
	assert.False(t, c.Add(New("b")))

	assert.Equal(t, []string{"b", "a", "c", "d"}, c.Addresses())
	assert.Equal(t, 4, c.Len())
}

func TestCollection_UpdateAndFilter(t *testing.T) {
	c := FromTokens([]*Token{New("a"), New("b")})
	assert.True(t, c.Update("a", func(tok *Token) { tok.SetHolder("w", 1) }))
	assert.False(t, c.Update("zzz", func(tok *Token) {}))

	missing := c.Filter(func(tok *Token) bool { return tok.HolderAddress == nil })
	require.Len(t, missing, 1)
	assert.Equal(t, "b", missing[0].Token)

	got, ok := c.Get("a")
	require.True(t, ok)
	got.SetHolder("other", 2)
	again, _ := c.Get("a")
	assert.Equal(t, "w", again.Holder(), "Get must hand out copies")
}

func TestCollection_ConcurrentUpdateAndSnapshot(t *testing.T) {
	addrs := make([]string, 200)
	for i := range addrs {
		addrs[i] = string(rune('A'+i%26)) + string(rune('a'+i/26))
	}
	c := NewCollection()
	c.EnsureAll(addrs)

	var wg sync.WaitGroup
	for _, a := range c.Addresses() {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			c.Update(addr, func(tok *Token) { tok.SetHolder("w-"+addr, 1) })
		}(a)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Tokens()
		}()
	}
	wg.Wait()

	for _, tok := range c.Tokens() {
		assert.Equal(t, "w-"+tok.Token, tok.Holder())
	}
}

func TestReadWriteList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.txt")
	require.NoError(t, WriteList(path, []string{"a", "b", "c"}))

	got, err := ReadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err = ReadList(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
