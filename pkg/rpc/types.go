package rpc

import (
	"encoding/base64"
	"strconv"

	"github.com/goccy/go-json"
)

// TokenAccount is the parsed owner view of an SPL token account.
type TokenAccount struct {
	Owner  string
	Amount uint64
}

// ProgramAccount is one result of getProgramAccounts.
type ProgramAccount struct {
	Pubkey string
	Data   []byte
}

// Filter narrows getProgramAccounts. Exactly one field is set.
type Filter struct {
	DataSize *uint64 `json:"dataSize,omitempty"`
	Memcmp   *Memcmp `json:"memcmp,omitempty"`
}

// Memcmp matches base58 Bytes at Offset in the account data.
type Memcmp struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"`
}

// DataSizeFilter matches accounts whose data is exactly size bytes.
func DataSizeFilter(size uint64) Filter {
	return Filter{DataSize: &size}
}

// MemcmpFilter matches accounts carrying the base58 value at offset.
func MemcmpFilter(offset uint64, base58Bytes string) Filter {
	return Filter{Memcmp: &Memcmp{Offset: offset, Bytes: base58Bytes}}
}

// --- wire types

type contextValue[T any] struct {
	Value T `json:"value"`
}

type largestAccount struct {
	Address string `json:"address"`
}

// accountData is the ["<payload>", "base64"] pair.
type accountData []string

func (d accountData) decode() ([]byte, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(d[0])
}

type rawAccount struct {
	Data accountData `json:"data"`
}

type parsedAccount struct {
	Data struct {
		Parsed struct {
			Info *struct {
				Owner       string `json:"owner"`
				TokenAmount struct {
					Amount string `json:"amount"`
				} `json:"tokenAmount"`
			} `json:"info"`
		} `json:"parsed"`
	} `json:"data"`
}

// tokenAccount returns nil when the account carries no owner.
func (p *parsedAccount) tokenAccount() *TokenAccount {
	if p == nil || p.Data.Parsed.Info == nil || p.Data.Parsed.Info.Owner == "" {
		return nil
	}
	amount, _ := strconv.ParseUint(p.Data.Parsed.Info.TokenAmount.Amount, 10, 64)
	return &TokenAccount{Owner: p.Data.Parsed.Info.Owner, Amount: amount}
}

// UnmarshalJSON tolerates jsonParsed payloads that come back as a base64 pair
// (non-token accounts); those carry no owner.
func (p *parsedAccount) UnmarshalJSON(b []byte) error {
	type alias parsedAccount
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		var fallback struct {
			Data accountData `json:"data"`
		}
		if json.Unmarshal(b, &fallback) == nil {
			*p = parsedAccount{}
			return nil
		}
		return err
	}
	*p = parsedAccount(a)
	return nil
}

type programAccount struct {
	Pubkey  string     `json:"pubkey"`
	Account rawAccount `json:"account"`
}
