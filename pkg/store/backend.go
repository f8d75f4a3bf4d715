package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/redis"
)

// Backend persists one opaque blob per cache key.
type Backend interface {
	// Read returns errs.ErrNotFound when nothing has been saved under key.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces the blob atomically.
	Write(ctx context.Context, key string, data []byte) error
	// Location describes where key lives, for logs.
	Location(key string) string
}

// Locker is implemented by backends that can guard a key against a second
// concurrent run.
type Locker interface {
	Lock(key string) (unlock func() error, err error)
}

// ErrLocked is returned by Lock when another process holds the key.
var ErrLocked = errors.New("cache is locked by another run")

// FileBackend stores "<key>_cache.<ext>" files in Dir.
type FileBackend struct {
	Dir string
	Ext string
}

// NewFileBackend returns a backend rooted at dir using the given file extension.
func NewFileBackend(dir, ext string) *FileBackend {
	if dir == "" {
		dir = "cache"
	}
	if ext == "" {
		ext = "json"
	}
	return &FileBackend{Dir: dir, Ext: strings.TrimPrefix(ext, ".")}
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.Dir, fmt.Sprintf("%s_cache.%s", key, b.Ext))
}

// Location implements Backend.
func (b *FileBackend) Location(key string) string {
	return b.path(key)
}

// Read implements Backend.
func (b *FileBackend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	return data, err
}

// Write implements Backend. The blob is written to a temp file in the same
// directory and renamed over the target.
func (b *FileBackend) Write(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(b.Dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path(key)); err != nil {
		cleanup()
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Lock takes an advisory file lock next to the snapshot.
func (b *FileBackend) Lock(key string) (func() error, error) {
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	lock := flock.New(b.path(key) + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", lock.Path(), ErrLocked)
	}
	return lock.Unlock, nil
}

// RedisBackend stores blobs under "nftsnap:cache:<key>".
type RedisBackend struct {
	Client *redis.Client
}

// NewRedisBackend wraps a connected client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{Client: client}
}

func (b *RedisBackend) redisKey(key string) string {
	return redis.Key("cache:" + key)
}

// Location implements Backend.
func (b *RedisBackend) Location(key string) string {
	return "redis:" + b.redisKey(key)
}

// Read implements Backend.
func (b *RedisBackend) Read(ctx context.Context, key string) ([]byte, error) {
	data, ok, err := b.Client.GetBytes(ctx, b.redisKey(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrNotFound
	}
	return data, nil
}

// Write implements Backend.
func (b *RedisBackend) Write(ctx context.Context, key string, data []byte) error {
	return b.Client.SetBytes(ctx, b.redisKey(key), data)
}
