// Package metadata derives Metaplex metadata addresses and decodes metadata
// accounts. Everything here is local computation; network access lives in pkg/rpc.
package metadata

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const (
	// MetadataProgramID is the Metaplex token metadata program.
	MetadataProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
	// CandyMachineV2ProgramID is the v2 candy machine program.
	CandyMachineV2ProgramID = "cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ"

	maxSeedLen = 32
	maxSeeds   = 16
	pdaMarker  = "ProgramDerivedAddress"
)

var errOnCurve = errors.New("derived address is on the ed25519 curve")

// PublicKey is a 32-byte Solana address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(b) != len(pk) {
		return pk, fmt.Errorf("decode address %q: want 32 bytes, got %d", s, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// Bytes returns a copy of the key bytes.
func (pk PublicKey) Bytes() []byte {
	b := make([]byte, len(pk))
	copy(b, pk[:])
	return b
}

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress hashes seeds under program and rejects results that
// land on the curve.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, fmt.Errorf("too many seeds: %d", len(seeds))
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return PublicKey{}, fmt.Errorf("seed longer than %d bytes", maxSeedLen)
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk[:]) {
		return PublicKey{}, errOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down and returns the first
// off-curve address with its bump.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, errOnCurve) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, errors.New("no viable bump seed")
}

// MetadataAddress returns the metadata account for mint.
func MetadataAddress(mint string) (string, error) {
	mintKey, err := ParsePublicKey(mint)
	if err != nil {
		return "", err
	}
	program, _ := ParsePublicKey(MetadataProgramID)
	pda, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program[:], mintKey[:]}, program)
	if err != nil {
		return "", fmt.Errorf("metadata address for %s: %w", mint, err)
	}
	return pda.String(), nil
}
