package token

import (
	"sync"
)

// Collection maps token address to Token, remembering insertion order.
// Stages mutate tokens through Update; snapshots read through Clone, so the
// periodic save never observes a half-written token.
type Collection struct {
	mu     sync.RWMutex
	order  []string
	tokens map[string]*Token
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{tokens: map[string]*Token{}}
}

// Len returns the number of tokens.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Add inserts t unless its address is already present. It reports whether t was added.
func (c *Collection) Add(t *Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tokens[t.Token]; ok {
		return false
	}
	c.tokens[t.Token] = t
	c.order = append(c.order, t.Token)
	return true
}

// EnsureAll adds an unfetched token for every address not yet present and
// returns how many were added.
func (c *Collection) EnsureAll(addresses []string) int {
	added := 0
	for _, a := range addresses {
		if c.Add(New(a)) {
			added++
		}
	}
	return added
}

// Get returns a copy of the token stored under address.
func (c *Collection) Get(address string) (*Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[address]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Update applies m to the stored token. It reports whether the token exists.
func (c *Collection) Update(address string, m Mutation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tokens[address]
	if !ok {
		return false
	}
	m(t)
	return true
}

// Filter returns copies of the tokens matching pred, in insertion order.
func (c *Collection) Filter(pred func(*Token) bool) []*Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Token, 0, len(c.order))
	for _, addr := range c.order {
		t := c.tokens[addr]
		if pred == nil || pred(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Tokens returns copies of every token in insertion order.
func (c *Collection) Tokens() []*Token {
	return c.Filter(nil)
}

// Addresses returns the keys in insertion order.
func (c *Collection) Addresses() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// FromTokens builds a collection preserving slice order. Later duplicates are dropped.
func FromTokens(tokens []*Token) *Collection {
	c := NewCollection()
	for _, t := range tokens {
		c.Add(t)
	}
	return c
}
