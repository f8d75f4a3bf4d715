// Package scheduler runs one fetch per eligible token under a concurrency
// ceiling and a shared token-bucket rate limit, retrying transient failures.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/token"
)

// Config bounds one scheduler. RateLimit operations are admitted per RateWindow.
type Config struct {
	Name           string
	MaxConcurrency int
	RateLimit      int
	RateWindow     time.Duration
	Retry          retry.Config
}

// Predicate selects tokens whose facet is still missing.
type Predicate func(*token.Token) bool

// FetchFunc fetches one facet for t, which is a private copy. The returned
// mutation is applied to the shared collection only on success.
type FetchFunc func(ctx context.Context, t *token.Token) (token.Mutation, error)

// Progress is an advisory view of the current run.
type Progress struct {
	Stage     string `json:"stage"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Failed    int64  `json:"failed"`
}

// Result summarizes a finished Run.
type Result struct {
	Scheduled int
	Succeeded int
	Failed    int
}

// Scheduler is safe for sequential Runs; concurrent Runs share the limiter
// and the pool but the progress view follows the latest one.
type Scheduler struct {
	cfg     Config
	logger  *zap.Logger
	limiter *rate.Limiter
	pool    pond.Pool

	stage     atomic.Pointer[string]
	completed atomic.Int64
	total     atomic.Int64
	failed    atomic.Int64

	// failures holds the last error per token address for the latest Run.
	failures *xsync.MapOf[string, error]

	mu         sync.RWMutex
	onProgress func(Progress)
}

// New builds a scheduler and its worker pool. Close releases the pool.
func New(logger *zap.Logger, cfg Config) *Scheduler {
	workers := Parallelism(cfg.MaxConcurrency)
	s := &Scheduler{
		cfg:      cfg,
		logger:   logger.Named("scheduler").With(zap.String("scheduler", cfg.Name)),
		limiter:  NewLimiter(cfg.RateLimit, cfg.RateWindow),
		pool:     pond.NewPool(workers),
		failures: xsync.NewMapOf[string, error](),
	}
	empty := ""
	s.stage.Store(&empty)
	return s
}

// NewLimiter admits at most limit events per window, with a burst of limit.
// A non-positive limit or window disables limiting.
func NewLimiter(limit int, window time.Duration) *rate.Limiter {
	if limit <= 0 || window <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
}

// Parallelism resolves the worker count: the override when set, otherwise
// four workers per CPU. Both are capped at 512.
func Parallelism(override int) int {
	if override > 0 {
		if override > 512 {
			return 512
		}
		return override
	}

	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	parallelism := n * 4
	if parallelism > 512 {
		parallelism = 512
	}
	return parallelism
}

// OnProgress registers a callback invoked after every finished unit. It must not block.
func (s *Scheduler) OnProgress(fn func(Progress)) {
	s.mu.Lock()
	s.onProgress = fn
	s.mu.Unlock()
}

// Progress returns the counters of the latest run.
func (s *Scheduler) Progress() Progress {
	return Progress{
		Stage:     *s.stage.Load(),
		Completed: s.completed.Load(),
		Total:     s.total.Load(),
		Failed:    s.failed.Load(),
	}
}

// Failures returns the addresses that failed during the latest run with their errors.
func (s *Scheduler) Failures() map[string]error {
	out := make(map[string]error, s.failures.Size())
	s.failures.Range(func(k string, v error) bool {
		out[k] = v
		return true
	})
	return out
}

// Close stops the worker pool after in-flight work drains.
func (s *Scheduler) Close() {
	s.pool.StopAndWait()
}

func (s *Scheduler) notify() {
	s.mu.RLock()
	fn := s.onProgress
	s.mu.RUnlock()
	if fn != nil {
		fn(s.Progress())
	}
}

func (s *Scheduler) reset(stage string, total int) {
	s.stage.Store(&stage)
	s.completed.Store(0)
	s.failed.Store(0)
	s.total.Store(int64(total))
	s.failures.Clear()
	s.notify()
}

// Run schedules fetch for every token in coll matching pred and waits for all
// of them. Per-token failures are logged and skipped; the token keeps its
// unset facet. The only error is ctx's.
func (s *Scheduler) Run(ctx context.Context, stage string, coll *token.Collection, pred Predicate, fetch FetchFunc) (Result, error) {
	eligible := coll.Filter(pred)
	s.reset(stage, len(eligible))
	logger := s.logger.With(zap.String("stage", stage))

	if len(eligible) == 0 {
		logger.Debug("Nothing to fetch")
		return Result{}, ctx.Err()
	}
	logger.Info("Stage started", zap.Int("tokens", len(eligible)), zap.Int("total", coll.Len()))
	start := time.Now()

	var succeeded atomic.Int64
	group := s.pool.NewGroup()
	for _, tok := range eligible {
		tok := tok
		group.Submit(func() {
			defer func() {
				s.completed.Add(1)
				s.notify()
			}()
			if err := s.runOne(ctx, stage, coll, tok, fetch); err != nil {
				s.failed.Add(1)
				s.failures.Store(tok.Token, err)
				if ctx.Err() == nil {
					logger.Warn("Token skipped", zap.String("token", tok.Token), zap.Error(err))
				}
				return
			}
			succeeded.Add(1)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logger.Warn("Stage group encountered error", zap.Error(err))
	}

	res := Result{
		Scheduled: len(eligible),
		Succeeded: int(succeeded.Load()),
		Failed:    int(s.failed.Load()),
	}
	logger.Info("Stage finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)))
	return res, ctx.Err()
}

func (s *Scheduler) runOne(ctx context.Context, stage string, coll *token.Collection, tok *token.Token, fetch FetchFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var mutation token.Mutation
	err := s.Do(ctx, fmt.Sprintf("%s %s", stage, tok.Token), func(ctx context.Context) error {
		m, err := fetch(ctx, tok.Clone())
		if err != nil {
			return err
		}
		mutation = m
		return nil
	})
	if err != nil {
		return err
	}
	if mutation != nil {
		coll.Update(tok.Token, mutation)
	}
	return nil
}

// Do runs fn once under the rate limiter with this scheduler's retry policy.
// Every attempt takes a limiter slot. It does not use the worker pool, so
// sequential callers stay sequential.
func (s *Scheduler) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	return retry.WithBackoff(ctx, s.cfg.Retry, s.logger, operation, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return fn(ctx)
	})
}
