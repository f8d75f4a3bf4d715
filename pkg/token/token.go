// Package token holds the per-item record enriched by the pipeline and the
// ordered collection the stages mutate.
package token

import (
	"strings"
)

// Trait is one named attribute carried in a token's off-chain metadata.
type Trait struct {
	Name  string `json:"name" msgpack:"name"`
	Value string `json:"value" msgpack:"value"`
}

// Traits keeps discovery order. A nil Traits means the trait stage has not run
// for the token; an empty, non-nil Traits means it ran and found nothing.
type Traits []Trait

// Get returns the value of the named trait.
func (ts Traits) Get(name string) (string, bool) {
	for _, t := range ts {
		if t.Name == name {
			return t.Value, true
		}
	}
	return "", false
}

// Set replaces the value of an existing trait or appends a new one.
func (ts Traits) Set(name, value string) Traits {
	for i := range ts {
		if ts[i].Name == name {
			ts[i].Value = value
			return ts
		}
	}
	return append(ts, Trait{Name: name, Value: value})
}

// Token is one on-chain item. Pointer fields distinguish "not fetched yet"
// (nil) from "fetched and empty" ("").
type Token struct {
	Token         string   `json:"token" msgpack:"token"`
	ID            string   `json:"id,omitempty" msgpack:"id,omitempty"`
	Name          *string  `json:"name,omitempty" msgpack:"name,omitempty"`
	TokenAccount  *string  `json:"token_account,omitempty" msgpack:"token_account,omitempty"`
	HolderAddress *string  `json:"holder_address,omitempty" msgpack:"holder_address,omitempty"`
	Amount        uint64   `json:"amount" msgpack:"amount"`
	DataURI       string   `json:"data_uri,omitempty" msgpack:"data_uri,omitempty"`
	Image         string   `json:"image,omitempty" msgpack:"image,omitempty"`
	Traits        Traits   `json:"traits" msgpack:"traits"`
	Rarity        *float64 `json:"rarity,omitempty" msgpack:"rarity,omitempty"`
	Rank          *int     `json:"rank,omitempty" msgpack:"rank,omitempty"`
}

// New returns an unfetched token for the given address.
func New(address string) *Token {
	return &Token{Token: address}
}

// IDFromName returns the text after the first '#', or the whole name when there is none.
func IDFromName(name string) string {
	if i := strings.Index(name, "#"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// SetName stores the display name and derives the collection sequence id.
func (t *Token) SetName(name string) {
	t.Name = &name
	t.ID = IDFromName(name)
}

// DisplayName returns the name or "" when it has not been fetched.
func (t *Token) DisplayName() string {
	if t.Name == nil {
		return ""
	}
	return *t.Name
}

// Holder returns the holder address or "" when unknown.
func (t *Token) Holder() string {
	if t.HolderAddress == nil {
		return ""
	}
	return *t.HolderAddress
}

// SetHolder records the holder facet. An empty owner stores zero amount.
func (t *Token) SetHolder(owner string, amount uint64) {
	t.HolderAddress = &owner
	if owner == "" {
		amount = 0
	}
	t.Amount = amount
}

// HasTraits reports whether the token carries at least one trait.
func (t *Token) HasTraits() bool {
	return len(t.Traits) > 0
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	c := *t
	c.Name = cloneString(t.Name)
	c.TokenAccount = cloneString(t.TokenAccount)
	c.HolderAddress = cloneString(t.HolderAddress)
	if t.Traits != nil {
		c.Traits = make(Traits, len(t.Traits))
		copy(c.Traits, t.Traits)
	}
	if t.Rarity != nil {
		r := *t.Rarity
		c.Rarity = &r
	}
	if t.Rank != nil {
		r := *t.Rank
		c.Rank = &r
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Mutation writes the fields owned by one stage. It runs under the collection lock.
type Mutation func(*Token)
