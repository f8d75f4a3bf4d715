package nftsnap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/metadata"
	"github.com/nftsnap/nftsnap/pkg/pipeline"
	"github.com/nftsnap/nftsnap/pkg/rarity"
	"github.com/nftsnap/nftsnap/pkg/report"
	"github.com/nftsnap/nftsnap/pkg/status"
	"github.com/nftsnap/nftsnap/pkg/store"
	"github.com/nftsnap/nftsnap/pkg/token"
	"github.com/nftsnap/nftsnap/pkg/utils"
)

// Options selects what one run fetches and reports.
type Options struct {
	// TokenFile is read for the token list, or written when GetTokenList is set.
	TokenFile      string
	GetTokenList   bool
	CandyMachineID string
	CandyMachineV2 bool

	Holders    bool
	Attributes bool
	Snapshot   bool
	BustCache  bool

	// Token, when set, prints the rarity detail of that token.
	Token string
	// CSVFile overrides output.csv.
	CSVFile string
}

// Validate rejects option sets that cannot run. It does no network activity.
func (o Options) Validate() error {
	if o.TokenFile == "" {
		return errs.Config("token_file", "a token list file is required")
	}
	if o.GetTokenList {
		if o.CandyMachineID == "" {
			return errs.Config("cmid", "fetching the token list needs a candy machine id")
		}
		return nil
	}
	if _, err := os.Stat(o.TokenFile); err != nil {
		return errs.Config("token_file", "%v", err)
	}
	return nil
}

// Stages maps report selections to the pipeline stages they need.
func (o Options) Stages() pipeline.Stages {
	return pipeline.Stages{
		Holders:  o.Holders || o.Snapshot,
		Metadata: o.Attributes || o.Snapshot || o.Token != "",
	}
}

// Run fetches what opts asks for, computes rarity and writes the reports.
func (a *App) Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	start := time.Now()

	if listen := a.Config.Status.Listen; listen != "" {
		srv := status.New(a.Logger, a.Pipeline, a.RunID)
		if _, err := srv.Start(ctx, listen); err != nil {
			a.Logger.Warn("Unable to start status server", zap.String("listen", listen), zap.Error(err))
		} else {
			defer srv.Shutdown()
		}
	}
	if bar := NewProgressBar(os.Stderr); bar != nil {
		a.RPCScheduler.OnProgress(bar.Update)
		a.HTTPScheduler.OnProgress(bar.Update)
		defer bar.Finish()
	}

	addresses, err := a.tokenList(ctx, opts)
	if err != nil {
		return err
	}

	key := store.KeyFromPath(opts.TokenFile)
	if err := a.Store.Initialize(key); err != nil {
		return err
	}
	unlock, err := a.Store.Lock()
	if err != nil {
		return fmt.Errorf("lock cache %s: %w", a.Store.Location(), err)
	}
	defer func() {
		if err := unlock(); err != nil {
			a.Logger.Warn("Unable to release cache lock", zap.Error(err))
		}
	}()

	coll, err := a.loadCollection(ctx, opts.BustCache)
	if err != nil {
		return err
	}
	added := coll.EnsureAll(addresses)
	a.Logger.Info("Collection ready",
		zap.String("cache", a.Store.Location()),
		zap.Int("tokens", coll.Len()),
		zap.Int("added", added),
	)

	if err := a.Pipeline.Run(ctx, coll, opts.Stages()); err != nil {
		return fmt.Errorf("enrich collection: %w", err)
	}

	res := rarity.Compute(coll.Tokens())
	res.Apply(coll)
	if err := a.Store.Save(ctx, coll); err != nil {
		a.Logger.Warn("Unable to save ranked collection", zap.Error(err))
	}

	if err := a.report(ctx, opts, key, coll, res); err != nil {
		return err
	}
	a.Logger.Info("Run finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// tokenList returns the addresses to process in file order, fetching and
// writing the list first when asked to.
func (a *App) tokenList(ctx context.Context, opts Options) ([]string, error) {
	if !opts.GetTokenList {
		addresses, err := token.ReadList(opts.TokenFile)
		if err != nil {
			return nil, err
		}
		return utils.Dedup(addresses), nil
	}

	a.Logger.Info("Fetching token list",
		zap.String("candy_machine", opts.CandyMachineID),
		zap.Bool("v2", opts.CandyMachineV2),
	)
	var mints []string
	err := a.RPCScheduler.Do(ctx, "list tokens", func(ctx context.Context) error {
		m, err := metadata.ListTokensForCollection(ctx, a.Listing, opts.CandyMachineID, opts.CandyMachineV2)
		if err != nil {
			return err
		}
		mints = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tokens for %s: %w", opts.CandyMachineID, err)
	}
	mints = utils.Dedup(mints)
	if err := token.WriteList(opts.TokenFile, mints); err != nil {
		return nil, err
	}
	a.Logger.Info("Token list written", zap.String("file", opts.TokenFile), zap.Int("tokens", len(mints)))
	return mints, nil
}

func (a *App) loadCollection(ctx context.Context, bust bool) (*token.Collection, error) {
	if !bust {
		return a.Store.Load(ctx)
	}
	coll := token.NewCollection()
	if err := a.Store.Save(ctx, coll); err != nil {
		a.Logger.Warn("Unable to clear cache", zap.Error(err))
	}
	return coll, nil
}

func (a *App) report(ctx context.Context, opts Options, collection string, coll *token.Collection, res *rarity.Result) error {
	tokens := coll.Tokens()

	if opts.Holders {
		counts := report.HolderCounts(tokens)
		if n, ok := counts[""]; ok {
			delete(counts, "")
			counts[report.UnknownAddress] += n
		}
		fmt.Fprint(a.Out, report.FormatBiggestHolders(len(tokens), counts))
	}

	if opts.Attributes {
		total, counts := rarity.CountAttributes(tokens)
		for _, t := range tokens {
			if !t.HasTraits() {
				a.Logger.Debug("Token has no attributes", zap.String("token", t.Token))
			}
		}
		fmt.Fprint(a.Out, report.FormatTraitFrequency(total, res.Traits.Names(), counts))
	}

	if opts.Snapshot {
		if err := a.writeSnapshot(opts.CSVFile, tokens, res); err != nil {
			return err
		}
	}

	if opts.Token != "" {
		t, ok := coll.Get(opts.Token)
		if !ok {
			return fmt.Errorf("token %s: %w", opts.Token, errs.ErrNotFound)
		}
		fmt.Fprintln(a.Out, report.FormatTokenRarity(t, res))
	}

	if a.Exporter != nil {
		if err := a.Exporter.Export(ctx, collection, tokens); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn("Snapshot export failed", zap.Error(err))
		}
	}
	return nil
}

func (a *App) writeSnapshot(path string, tokens []*token.Token, res *rarity.Result) error {
	if path == "" {
		path = a.Config.Output.CSV
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot %s: %w", path, err)
	}
	if err := report.WriteSnapshotCSV(f, tokens, res.Traits); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot %s: %w", path, err)
	}
	a.Logger.Info("Snapshot written", zap.String("file", path), zap.Int("rows", len(tokens)))
	return nil
}
