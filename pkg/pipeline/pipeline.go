// Package pipeline enriches a token collection in three stages: holders,
// on-chain account metadata and off-chain trait metadata. Each stage only
// touches tokens missing its facet and persists the collection when done.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/offchain"
	"github.com/nftsnap/nftsnap/pkg/rpc"
	"github.com/nftsnap/nftsnap/pkg/scheduler"
	"github.com/nftsnap/nftsnap/pkg/token"
)

// Stage names reported through progress and logs.
const (
	StageTokenAccounts = "token-accounts"
	StageHolders       = "holders"
	StageAccounts      = "account-metadata"
	StageTraits        = "trait-metadata"
)

// DefaultBatchSize is the number of accounts resolved per getMultipleAccounts call.
const DefaultBatchSize = 100

// Snapshotter persists the collection. *store.Store implements it.
type Snapshotter interface {
	Save(ctx context.Context, coll *token.Collection) error
	RunPeriodicSnapshot(ctx context.Context, coll *token.Collection, interval time.Duration) (stop func())
}

// Config wires a Pipeline.
type Config struct {
	RPC              rpc.Client
	Documents        offchain.Fetcher
	RPCScheduler     *scheduler.Scheduler
	HTTPScheduler    *scheduler.Scheduler
	Store            Snapshotter
	BatchSize        int
	SnapshotInterval time.Duration
}

// Stages selects which facets Run fetches.
type Stages struct {
	Holders  bool
	Metadata bool
}

// Pipeline runs the enrichment stages in dependency order.
type Pipeline struct {
	logger *zap.Logger
	cfg    Config

	stage  atomic.Pointer[string]
	active atomic.Pointer[scheduler.Scheduler]
}

// New returns a pipeline with batch size and snapshot interval defaulted.
func New(logger *zap.Logger, cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 20 * time.Second
	}
	return &Pipeline{logger: logger.Named("pipeline"), cfg: cfg}
}

// Progress reports the stage in flight and its counters.
func (p *Pipeline) Progress() scheduler.Progress {
	s := p.active.Load()
	if s == nil {
		return scheduler.Progress{}
	}
	prog := s.Progress()
	if name := p.stage.Load(); name != nil && *name != "" {
		prog.Stage = *name
	}
	return prog
}

// Run executes the selected stages. Holders come first, then account
// metadata, then traits, since each consumes identifiers from the previous.
func (p *Pipeline) Run(ctx context.Context, coll *token.Collection, stages Stages) error {
	if stages.Holders {
		if err := p.Holders(ctx, coll); err != nil {
			return err
		}
	}
	if stages.Metadata {
		if err := p.AccountMetadata(ctx, coll); err != nil {
			return err
		}
		if err := p.TraitMetadata(ctx, coll); err != nil {
			return err
		}
	}
	return nil
}

// runStage brackets fn with a periodic snapshot and a final save. The final
// save runs even when fn fails so partial progress survives.
func (p *Pipeline) runStage(ctx context.Context, name string, coll *token.Collection, sched *scheduler.Scheduler, fn func(ctx context.Context) error) error {
	p.stage.Store(&name)
	p.active.Store(sched)

	stop := p.cfg.Store.RunPeriodicSnapshot(ctx, coll, p.cfg.SnapshotInterval)
	err := fn(ctx)
	stop()

	// A cancelled run still gets its progress saved.
	saveCtx := context.WithoutCancel(ctx)
	if saveErr := p.cfg.Store.Save(saveCtx, coll); saveErr != nil {
		p.logger.Warn("Unable to save after stage", zap.String("stage", name), zap.Error(saveErr))
	}
	return err
}
