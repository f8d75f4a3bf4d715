package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/metadata"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/rpc"
	"github.com/nftsnap/nftsnap/pkg/token"
)

func needsTokenAccount(t *token.Token) bool { return t.TokenAccount == nil }

func needsHolder(t *token.Token) bool { return t.HolderAddress == nil }

func needsAccountMetadata(t *token.Token) bool { return t.Name == nil }

func needsTraits(t *token.Token) bool { return t.Traits == nil && t.Name != nil }

// Holders resolves the largest token account per token, then owner and
// amount in batches. Tokens without an account get an empty holder.
func (p *Pipeline) Holders(ctx context.Context, coll *token.Collection) error {
	sched := p.cfg.RPCScheduler
	return p.runStage(ctx, StageHolders, coll, sched, func(ctx context.Context) error {
		_, err := sched.Run(ctx, StageTokenAccounts, coll, needsTokenAccount, p.fetchTokenAccount)
		if err != nil {
			return err
		}
		return p.resolveHolders(ctx, coll)
	})
}

func (p *Pipeline) fetchTokenAccount(ctx context.Context, t *token.Token) (token.Mutation, error) {
	account, err := p.cfg.RPC.TokenLargestAccount(ctx, t.Token)
	if err != nil {
		return nil, err
	}
	return func(t *token.Token) {
		t.TokenAccount = &account
	}, nil
}

// resolveHolders runs the batched owner lookup. Chunks go out one at a time;
// a failed chunk leaves its tokens unset for the next run.
func (p *Pipeline) resolveHolders(ctx context.Context, coll *token.Collection) error {
	byAccount := map[string][]string{}
	var accounts []string
	for _, t := range coll.Filter(needsHolder) {
		switch {
		case t.TokenAccount == nil:
			// Account lookup failed this run.
		case *t.TokenAccount == "":
			coll.Update(t.Token, func(t *token.Token) { t.SetHolder("", 0) })
		default:
			if _, ok := byAccount[*t.TokenAccount]; !ok {
				accounts = append(accounts, *t.TokenAccount)
			}
			byAccount[*t.TokenAccount] = append(byAccount[*t.TokenAccount], t.Token)
		}
	}
	if len(accounts) == 0 {
		return ctx.Err()
	}

	chunks := lo.Chunk(accounts, p.cfg.BatchSize)
	logger := p.logger.With(zap.String("stage", StageHolders))
	logger.Info("Resolving holders", zap.Int("accounts", len(accounts)), zap.Int("batches", len(chunks)))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		var owners []*rpc.TokenAccount
		err := p.cfg.RPCScheduler.Do(ctx, fmt.Sprintf("holders batch %d/%d", i+1, len(chunks)), func(ctx context.Context) error {
			var err error
			owners, err = p.cfg.RPC.MultipleTokenAccounts(ctx, chunk)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("Holder batch skipped", zap.Int("batch", i+1), zap.Int("accounts", len(chunk)), zap.Error(err))
			continue
		}
		for j, account := range chunk {
			owner, amount := "", uint64(0)
			if j < len(owners) && owners[j] != nil {
				owner, amount = owners[j].Owner, owners[j].Amount
			}
			for _, addr := range byAccount[account] {
				coll.Update(addr, func(t *token.Token) { t.SetHolder(owner, amount) })
			}
		}
	}
	return nil
}

// AccountMetadata decodes the Metaplex metadata account of every token
// without a name.
func (p *Pipeline) AccountMetadata(ctx context.Context, coll *token.Collection) error {
	sched := p.cfg.RPCScheduler
	return p.runStage(ctx, StageAccounts, coll, sched, func(ctx context.Context) error {
		_, err := sched.Run(ctx, StageAccounts, coll, needsAccountMetadata, p.fetchAccountMetadata)
		return err
	})
}

func (p *Pipeline) fetchAccountMetadata(ctx context.Context, t *token.Token) (token.Mutation, error) {
	address, err := metadata.MetadataAddress(t.Token)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	raw, err := p.cfg.RPC.AccountInfo(ctx, address)
	if errors.Is(err, errs.ErrNotFound) {
		return func(t *token.Token) {
			t.SetName("")
			t.DataURI = ""
		}, nil
	}
	if err != nil {
		return nil, err
	}
	acc, err := metadata.DecodeAccount(raw)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("metadata %s: %w", address, err))
	}
	return func(t *token.Token) {
		t.SetName(acc.Name)
		t.DataURI = acc.URI
	}, nil
}

// TraitMetadata fetches the off-chain document of every named token without
// traits. Tokens without a data URI, or whose document is gone, get empty traits.
func (p *Pipeline) TraitMetadata(ctx context.Context, coll *token.Collection) error {
	sched := p.cfg.HTTPScheduler
	return p.runStage(ctx, StageTraits, coll, sched, func(ctx context.Context) error {
		_, err := sched.Run(ctx, StageTraits, coll, needsTraits, p.fetchTraits)
		return err
	})
}

func emptyTraits(t *token.Token) {
	t.Image = ""
	t.Traits = token.Traits{}
}

func (p *Pipeline) fetchTraits(ctx context.Context, t *token.Token) (token.Mutation, error) {
	if t.DataURI == "" {
		return emptyTraits, nil
	}
	doc, err := p.cfg.Documents.FetchDocument(ctx, t.DataURI)
	if errors.Is(err, errs.ErrNotFound) {
		return emptyTraits, nil
	}
	if err != nil {
		return nil, err
	}
	traits := doc.Traits
	if traits == nil {
		traits = token.Traits{}
	}
	return func(t *token.Token) {
		t.Image = doc.Image
		t.Traits = traits
	}, nil
}
