package rpc

import (
	"context"
	"fmt"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
)

// TokenLargestAccount implements Client.
func (c *HTTPClient) TokenLargestAccount(ctx context.Context, mint string) (string, error) {
	var out contextValue[[]largestAccount]
	if err := c.call(ctx, "getTokenLargestAccounts", []any{mint}, &out); err != nil {
		return "", err
	}
	if len(out.Value) == 0 {
		return "", nil
	}
	return out.Value[0].Address, nil
}

// MultipleTokenAccounts implements Client.
func (c *HTTPClient) MultipleTokenAccounts(ctx context.Context, accounts []string) ([]*TokenAccount, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	var out contextValue[[]*parsedAccount]
	params := []any{accounts, map[string]any{"encoding": "jsonParsed"}}
	if err := c.call(ctx, "getMultipleAccounts", params, &out); err != nil {
		return nil, err
	}
	if len(out.Value) != len(accounts) {
		return nil, retry.Permanent(fmt.Errorf("getMultipleAccounts: %w: %d values for %d accounts",
			errs.ErrMalformed, len(out.Value), len(accounts)))
	}
	result := make([]*TokenAccount, len(accounts))
	for i, acc := range out.Value {
		result[i] = acc.tokenAccount()
	}
	return result, nil
}

// AccountInfo implements Client.
func (c *HTTPClient) AccountInfo(ctx context.Context, address string) ([]byte, error) {
	var out contextValue[*rawAccount]
	params := []any{address, map[string]any{"encoding": "base64"}}
	if err := c.call(ctx, "getAccountInfo", params, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return nil, fmt.Errorf("account %s: %w", address, errs.ErrNotFound)
	}
	data, err := out.Value.Data.decode()
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("account %s: %w: %v", address, errs.ErrMalformed, err))
	}
	return data, nil
}

// ProgramAccounts implements Client.
func (c *HTTPClient) ProgramAccounts(ctx context.Context, program string, filters ...Filter) ([]ProgramAccount, error) {
	cfg := map[string]any{"encoding": "base64"}
	if len(filters) > 0 {
		cfg["filters"] = filters
	}
	var out []programAccount
	if err := c.call(ctx, "getProgramAccounts", []any{program, cfg}, &out); err != nil {
		return nil, err
	}
	accounts := make([]ProgramAccount, 0, len(out))
	for _, pa := range out {
		data, err := pa.Account.Data.decode()
		if err != nil {
			return nil, retry.Permanent(fmt.Errorf("program account %s: %w: %v", pa.Pubkey, errs.ErrMalformed, err))
		}
		accounts = append(accounts, ProgramAccount{Pubkey: pa.Pubkey, Data: data})
	}
	return accounts, nil
}
