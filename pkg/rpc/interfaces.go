package rpc

import (
	"context"
)

// Client captures the Solana RPC calls used by the enrichment stages and the
// collection listing.
type Client interface {
	// TokenLargestAccount returns the largest token account holding mint, or "" when there is none.
	TokenLargestAccount(ctx context.Context, mint string) (string, error)
	// MultipleTokenAccounts resolves owner and amount for each account. Entries
	// are nil when the account is absent or carries no owner.
	MultipleTokenAccounts(ctx context.Context, accounts []string) ([]*TokenAccount, error)
	// AccountInfo returns the raw account data, or errs.ErrNotFound.
	AccountInfo(ctx context.Context, address string) ([]byte, error)
	// ProgramAccounts lists the accounts owned by program matching every filter.
	ProgramAccounts(ctx context.Context, program string, filters ...Filter) ([]ProgramAccount, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}
