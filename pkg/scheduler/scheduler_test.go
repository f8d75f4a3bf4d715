package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/token"
)

func testConfig() Config {
	return Config{
		Name:           "test",
		MaxConcurrency: 4,
		RateLimit:      1000,
		RateWindow:     time.Second,
		Retry: retry.Config{
			MaxAttempts: 3,
			MinDelay:    50 * time.Millisecond,
			MaxDelay:    100 * time.Millisecond,
			Multiplier:  2,
		},
	}
}

func collectionOf(n int) *token.Collection {
	coll := token.NewCollection()
	for i := 0; i < n; i++ {
		coll.Add(token.New(fmt.Sprintf("mint-%d", i)))
	}
	return coll
}

func needsName(t *token.Token) bool { return t.Name == nil }

func setName(name string) token.Mutation {
	return func(t *token.Token) { t.SetName(name) }
}

func TestRun_AppliesMutations(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(20)

	res, err := s.Run(context.Background(), "names", coll, needsName, func(_ context.Context, tok *token.Token) (token.Mutation, error) {
		return setName("Thing #" + tok.Token), nil
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Scheduled: 20, Succeeded: 20}, res)

	for _, tok := range coll.Tokens() {
		assert.Equal(t, "Thing #"+tok.Token, tok.DisplayName())
	}
	assert.Equal(t, Progress{Stage: "names", Completed: 20, Total: 20}, s.Progress())
}

func TestRun_SkipsPopulatedTokens(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(5)
	for _, addr := range coll.Addresses() {
		coll.Update(addr, setName("done"))
	}

	var calls atomic.Int32
	res, err := s.Run(context.Background(), "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		calls.Add(1)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, res.Scheduled)
}

func TestRun_RetriesRateLimitedThenSucceeds(t *testing.T) {
	cfg := testConfig()
	s := New(zap.NewNop(), cfg)
	defer s.Close()
	coll := collectionOf(1)

	var attempts atomic.Int32
	start := time.Now()
	res, err := s.Run(context.Background(), "names", coll, needsName, func(_ context.Context, tok *token.Token) (token.Mutation, error) {
		if attempts.Add(1) == 1 {
			return nil, errs.ErrRateLimited
		}
		return setName("ok"), nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), cfg.Retry.MinDelay)
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, 1, res.Succeeded)

	tok, _ := coll.Get("mint-0")
	assert.Equal(t, "ok", tok.DisplayName())
}

func TestRun_PermanentFailureIsNotRetried(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(3)

	var attempts atomic.Int32
	res, err := s.Run(context.Background(), "names", coll, needsName, func(_ context.Context, tok *token.Token) (token.Mutation, error) {
		if tok.Token == "mint-1" {
			attempts.Add(1)
			return nil, retry.Permanent(fmt.Errorf("decode: %w", errs.ErrMalformed))
		}
		return setName("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Equal(t, Result{Scheduled: 3, Succeeded: 2, Failed: 1}, res)

	bad, _ := coll.Get("mint-1")
	assert.Nil(t, bad.Name, "failed facet stays unset")
	failures := s.Failures()
	require.Contains(t, failures, "mint-1")
	assert.ErrorIs(t, failures["mint-1"], errs.ErrMalformed)
}

func TestRun_ExhaustedRetriesSkipToken(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MinDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	s := New(zap.NewNop(), cfg)
	defer s.Close()
	coll := collectionOf(1)

	var attempts atomic.Int32
	res, err := s.Run(context.Background(), "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		attempts.Add(1)
		return nil, errors.New("connection reset")
	})
	require.NoError(t, err)
	assert.Equal(t, int32(cfg.Retry.MaxAttempts), attempts.Load())
	assert.Equal(t, 1, res.Failed)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, s.Failures()["mint-0"], &exhausted)
}

func TestRun_HonorsConcurrencyCeiling(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 2
	s := New(zap.NewNop(), cfg)
	defer s.Close()
	coll := collectionOf(10)

	var inFlight, peak atomic.Int32
	_, err := s.Run(context.Background(), "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return setName("ok"), nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRun_HonorsRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 10
	cfg.RateLimit = 5
	cfg.RateWindow = 500 * time.Millisecond
	s := New(zap.NewNop(), cfg)
	defer s.Close()
	coll := collectionOf(10)

	start := time.Now()
	_, err := s.Run(context.Background(), "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		return setName("ok"), nil
	})
	require.NoError(t, err)
	// The first five pass on the burst, the remaining five refill at 100ms each.
	assert.GreaterOrEqual(t, time.Since(start), 400*time.Millisecond)
}

func TestRun_ProgressCallback(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(8)

	var mu sync.Mutex
	var seen []int64
	s.OnProgress(func(p Progress) {
		mu.Lock()
		seen = append(seen, p.Completed)
		mu.Unlock()
	})

	_, err := s.Run(context.Background(), "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		return setName("ok"), nil
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	// One call on reset plus one per finished token.
	require.Len(t, seen, 9)
	assert.Equal(t, int64(0), seen[0])
	assert.Equal(t, int64(8), lo.Max(seen))
	assert.Equal(t, int64(8), s.Progress().Completed)
}

func TestRun_CancelledContext(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	_, err := s.Run(ctx, "names", coll, needsName, func(context.Context, *token.Token) (token.Mutation, error) {
		calls.Add(1)
		return setName("ok"), nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load())
	assert.Len(t, coll.Filter(needsName), 5)
}

func TestRun_FetchSeesPrivateCopy(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()
	coll := collectionOf(1)

	_, err := s.Run(context.Background(), "names", coll, needsName, func(_ context.Context, tok *token.Token) (token.Mutation, error) {
		tok.SetName("scribbled")
		return nil, retry.Permanent(errs.ErrMalformed)
	})
	require.NoError(t, err)
	tok, _ := coll.Get("mint-0")
	assert.Nil(t, tok.Name)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	s := New(zap.NewNop(), testConfig())
	defer s.Close()

	var attempts int
	err := s.Do(context.Background(), "chunk", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errs.ErrRateLimited
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestParallelism(t *testing.T) {
	assert.Equal(t, 7, Parallelism(7))
	assert.Equal(t, 512, Parallelism(10_000))
	assert.GreaterOrEqual(t, Parallelism(0), 4)
}

func TestNewLimiter_Disabled(t *testing.T) {
	l := NewLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}
