package metadata

import (
	"context"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/rpc"
)

// ProgramAccountsGetter is the slice of rpc.Client the listing needs.
type ProgramAccountsGetter interface {
	ProgramAccounts(ctx context.Context, program string, filters ...rpc.Filter) ([]rpc.ProgramAccount, error)
}

// CandyMachineCreator returns the address recorded as first creator on every
// token minted by the candy machine. v2 machines sign with a PDA of the
// machine id; v1 machines sign with the id itself.
func CandyMachineCreator(candyMachineID string, v2 bool) (string, error) {
	cm, err := ParsePublicKey(candyMachineID)
	if err != nil {
		return "", retry.Permanent(err)
	}
	if !v2 {
		return cm.String(), nil
	}
	program, _ := ParsePublicKey(CandyMachineV2ProgramID)
	creator, _, err := FindProgramAddress([][]byte{[]byte("candy_machine"), cm[:]}, program)
	if err != nil {
		return "", retry.Permanent(err)
	}
	return creator.String(), nil
}

// ListTokensForCollection returns the mint of every metadata account whose
// first creator is the candy machine. Order follows the RPC response.
func ListTokensForCollection(ctx context.Context, getter ProgramAccountsGetter, candyMachineID string, v2 bool) ([]string, error) {
	creator, err := CandyMachineCreator(candyMachineID, v2)
	if err != nil {
		return nil, err
	}
	accounts, err := getter.ProgramAccounts(ctx, MetadataProgramID,
		rpc.DataSizeFilter(AccountSize),
		rpc.MemcmpFilter(CreatorArrayOffset, creator),
	)
	if err != nil {
		return nil, err
	}

	mints := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		if len(acc.Data) < MintOffset+32 {
			return nil, retry.Permanent(fmt.Errorf("account %s: %w: %d bytes", acc.Pubkey, errs.ErrMalformed, len(acc.Data)))
		}
		mints = append(mints, base58.Encode(acc.Data[MintOffset:MintOffset+32]))
	}
	return mints, nil
}
