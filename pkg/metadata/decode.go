package metadata

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/nftsnap/nftsnap/pkg/errs"
)

// Account layout sizes used to locate fields in fixed-size metadata accounts.
const (
	maxNameLen    = 32
	maxSymbolLen  = 10
	maxURILen     = 200
	maxCreatorLen = 32 + 1 + 1
	maxCreators   = 5

	maxDataSize = 4 + maxNameLen + 4 + maxSymbolLen + 4 + maxURILen + 2 + 1 + 4 + maxCreators*maxCreatorLen

	// AccountSize is the on-chain size of a metadata account.
	AccountSize = 1 + 32 + 32 + maxDataSize + 1 + 1 + 9 + 172

	// CreatorArrayOffset is where the first creator's address starts.
	CreatorArrayOffset = 1 + 32 + 32 + 4 + maxNameLen + 4 + maxURILen + 4 + maxSymbolLen + 2 + 1 + 4

	// MintOffset is where the mint address starts.
	MintOffset = 1 + 32
)

// Creator is one verified or unverified creator entry.
type Creator struct {
	Address  string
	Verified bool
	Share    uint8
}

// Account is the decoded metadata account.
type Account struct {
	Key                  uint8
	UpdateAuthority      string
	Mint                 string
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
	PrimarySaleHappened  bool
	IsMutable            bool
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.b) {
		r.err = fmt.Errorf("%w: metadata truncated at offset %d", errs.ErrMalformed, r.off)
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) pubkey() string {
	b := r.take(32)
	if b == nil {
		return ""
	}
	return base58.Encode(b)
}

func (r *reader) str() string {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return strings.TrimRight(string(b), "\x00")
}

// DecodeAccount decodes a metadata account. Trailing optional sections
// (creators, sale flags) are read when present.
func DecodeAccount(raw []byte) (*Account, error) {
	r := &reader{b: raw}
	acc := &Account{
		Key:             r.u8(),
		UpdateAuthority: r.pubkey(),
		Mint:            r.pubkey(),
		Name:            r.str(),
		Symbol:          r.str(),
		URI:             r.str(),
	}
	acc.SellerFeeBasisPoints = r.u16()
	if r.err != nil {
		return nil, r.err
	}

	if r.off < len(raw) && r.u8() == 1 {
		n := r.u32()
		if n > maxCreators {
			return nil, fmt.Errorf("%w: %d creators", errs.ErrMalformed, n)
		}
		for i := uint32(0); i < n; i++ {
			acc.Creators = append(acc.Creators, Creator{
				Address:  r.pubkey(),
				Verified: r.u8() == 1,
				Share:    r.u8(),
			})
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	if r.off+2 <= len(raw) {
		acc.PrimarySaleHappened = r.u8() == 1
		acc.IsMutable = r.u8() == 1
	}
	return acc, nil
}
