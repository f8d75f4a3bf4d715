// Package store persists a token collection between runs so a long fetch can
// resume where it stopped. Load never fails on missing or corrupt data and
// Save never aborts the run: durability is best effort.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/token"
)

const snapshotVersion = 1

// snapshot is the persisted form. A slice keeps collection order across runs.
type snapshot struct {
	Version int            `json:"version" msgpack:"version"`
	SavedAt time.Time      `json:"saved_at" msgpack:"saved_at"`
	Tokens  []*token.Token `json:"tokens" msgpack:"tokens"`
}

// Store binds a backend and codec to one cache key.
type Store struct {
	logger  *zap.Logger
	backend Backend
	codec   Codec

	// saveMu keeps the periodic and the end-of-stage saves from interleaving.
	saveMu sync.Mutex

	mu          sync.RWMutex
	key         string
	initialized bool
}

// New returns an uninitialized store.
func New(logger *zap.Logger, backend Backend, codec Codec) *Store {
	return &Store{
		logger:  logger.Named("store"),
		backend: backend,
		codec:   codec,
	}
}

// KeyFromPath derives a cache key from a token-list file name.
func KeyFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSpace(base)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "tokens"
	}
	return base
}

// Initialize binds the store to cacheKey. It must be called before Load or Save.
func (s *Store) Initialize(cacheKey string) error {
	if cacheKey == "" {
		return errs.Config("cache_key", "must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = cacheKey
	s.initialized = true
	return nil
}

func (s *Store) boundKey() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return "", errs.ErrNotInitialized
	}
	return s.key, nil
}

// Location describes where the snapshot is persisted.
func (s *Store) Location() string {
	key, err := s.boundKey()
	if err != nil {
		return ""
	}
	return s.backend.Location(key)
}

// Lock guards the cache key against a concurrent run when the backend supports it.
func (s *Store) Lock() (func() error, error) {
	key, err := s.boundKey()
	if err != nil {
		return nil, err
	}
	if l, ok := s.backend.(Locker); ok {
		return l.Lock(key)
	}
	return func() error { return nil }, nil
}

// Load reads the persisted collection. Missing or unreadable snapshots yield
// an empty collection; the only error is errs.ErrNotInitialized.
func (s *Store) Load(ctx context.Context) (*token.Collection, error) {
	key, err := s.boundKey()
	if err != nil {
		return nil, err
	}
	location := s.backend.Location(key)

	data, err := s.backend.Read(ctx, key)
	if errors.Is(err, errs.ErrNotFound) {
		s.logger.Debug("No cached snapshot", zap.String("location", location))
		return token.NewCollection(), nil
	}
	if err != nil {
		s.logger.Warn("Unable to read cached snapshot", zap.String("location", location), zap.Error(err))
		return token.NewCollection(), nil
	}

	var snap snapshot
	if err := s.codec.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("Cached snapshot is corrupt, starting empty", zap.String("location", location), zap.Error(err))
		return token.NewCollection(), nil
	}

	coll := token.NewCollection()
	for _, t := range snap.Tokens {
		if t == nil || t.Token == "" {
			continue
		}
		coll.Add(t)
	}
	s.logger.Debug("Loaded cached snapshot",
		zap.String("location", location),
		zap.Int("tokens", coll.Len()),
		zap.Time("saved_at", snap.SavedAt))
	return coll, nil
}

// Save overwrites the persisted snapshot with the full collection. Write
// failures are logged and swallowed; the only error is errs.ErrNotInitialized.
func (s *Store) Save(ctx context.Context, coll *token.Collection) error {
	key, err := s.boundKey()
	if err != nil {
		return err
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	location := s.backend.Location(key)
	snap := snapshot{Version: snapshotVersion, SavedAt: time.Now().UTC(), Tokens: coll.Tokens()}
	data, err := s.codec.Marshal(&snap)
	if err != nil {
		s.logger.Warn("Unable to encode snapshot", zap.String("location", location), zap.Error(err))
		return nil
	}
	if err := s.backend.Write(ctx, key, data); err != nil {
		s.logger.Warn("Unable to write snapshot", zap.String("location", location), zap.Error(err))
		return nil
	}
	s.logger.Debug("Wrote snapshot", zap.String("location", location), zap.Int("tokens", len(snap.Tokens)))
	return nil
}

// RunPeriodicSnapshot saves coll every interval until the returned stop
// function is called or ctx is done. Stop blocks until an in-flight save
// finishes and is safe to call more than once. Intervals under a second are
// rounded up to one second.
func (s *Store) RunPeriodicSnapshot(ctx context.Context, coll *token.Collection, interval time.Duration) (stop func()) {
	if _, err := s.boundKey(); err != nil {
		s.logger.Warn("Periodic snapshot not started", zap.Error(err))
		return func() {}
	}

	logger := cronLogger{l: s.logger.Named("periodic")}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		_ = s.Save(ctx, coll)
	}))
	c.Start()

	var once sync.Once
	done := make(chan struct{})
	stopFn := func() {
		once.Do(func() {
			close(done)
			<-c.Stop().Done()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stopFn()
		case <-done:
		}
	}()
	return stopFn
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Sugar().Warnw(msg, append(keysAndValues, "error", err)...)
}
