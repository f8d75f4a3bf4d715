// Package config loads run settings: defaults, then an optional TOML file,
// then NFTSNAP_* environment variables. CLI flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/nftsnap/nftsnap/pkg/errs"
	"github.com/nftsnap/nftsnap/pkg/retry"
	"github.com/nftsnap/nftsnap/pkg/utils"
)

// Limits is the shared shape of the rate, concurrency and retry settings of
// one upstream.
type Limits struct {
	TimeoutSeconds    int `toml:"timeout_seconds"`
	MaxConnections    int `toml:"max_connections"`
	RateLimit         int `toml:"rate_limit"`
	RateWindowSeconds int `toml:"rate_window_seconds"`
	MaxAttempts       int `toml:"max_attempts"`
	MinBackoffMS      int `toml:"min_backoff_ms"`
	MaxBackoffMS      int `toml:"max_backoff_ms"`
}

// Timeout is the total per-call timeout.
func (l Limits) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// RateWindow is the token-bucket window.
func (l Limits) RateWindow() time.Duration {
	return time.Duration(l.RateWindowSeconds) * time.Second
}

// Retry converts the attempt and backoff settings.
func (l Limits) Retry() retry.Config {
	return retry.Config{
		MaxAttempts:   l.MaxAttempts,
		MinDelay:      time.Duration(l.MinBackoffMS) * time.Millisecond,
		MaxDelay:      time.Duration(l.MaxBackoffMS) * time.Millisecond,
		Multiplier:    2.0,
		JitterEnabled: true,
	}
}

// RPC configures the Solana JSON-RPC upstream.
type RPC struct {
	Limits
	Endpoints        []string `toml:"endpoints"`
	ListingEndpoints []string `toml:"listing_endpoints"`
	BatchSize        int      `toml:"batch_size"`
}

// Listing returns the endpoints used for getProgramAccounts, which many
// providers disable. Falls back to Endpoints.
func (r RPC) Listing() []string {
	if len(r.ListingEndpoints) > 0 {
		return r.ListingEndpoints
	}
	return r.Endpoints
}

// HTTP configures off-chain document fetches.
type HTTP struct {
	Limits
	IPFSGateway string `toml:"ipfs_gateway"`
}

// Cache configures snapshot persistence.
type Cache struct {
	Backend                 string `toml:"backend"`
	Dir                     string `toml:"dir"`
	RedisURL                string `toml:"redis_url"`
	Codec                   string `toml:"codec"`
	SnapshotIntervalSeconds int    `toml:"snapshot_interval_seconds"`
}

// SnapshotInterval is the period of mid-stage saves.
func (c Cache) SnapshotInterval() time.Duration {
	return time.Duration(c.SnapshotIntervalSeconds) * time.Second
}

// Output configures report files.
type Output struct {
	CSV string `toml:"csv"`
}

// ClickHouse configures the optional analytics export. Empty DSN disables it.
type ClickHouse struct {
	DSN      string `toml:"dsn"`
	Database string `toml:"database"`
}

// Status configures the optional progress endpoint. Empty Listen disables it.
type Status struct {
	Listen string `toml:"listen"`
}

// Log configures the logger.
type Log struct {
	Level    string `toml:"level"`
	Encoding string `toml:"encoding"`
	File     string `toml:"file"`
}

// Config is the complete run configuration.
type Config struct {
	RPC        RPC        `toml:"rpc"`
	HTTP       HTTP       `toml:"http"`
	Cache      Cache      `toml:"cache"`
	Output     Output     `toml:"output"`
	ClickHouse ClickHouse `toml:"clickhouse"`
	Status     Status     `toml:"status"`
	Log        Log        `toml:"log"`
}

// Load builds the configuration. An empty path skips the file; a named file
// that does not exist is a configuration error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Config("config", "file %s does not exist", path)
		}
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, errs.Config("config", "parse %s: %v", path, err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := utils.Env("NFTSNAP_RPC_ENDPOINTS", ""); v != "" {
		c.RPC.Endpoints = splitList(v)
	}
	if v := utils.Env("NFTSNAP_RPC_LISTING_ENDPOINTS", ""); v != "" {
		c.RPC.ListingEndpoints = splitList(v)
	}
	c.RPC.RateLimit = utils.EnvInt("NFTSNAP_RPC_RATE_LIMIT", c.RPC.RateLimit)
	c.RPC.MaxConnections = utils.EnvInt("NFTSNAP_RPC_MAX_CONNECTIONS", c.RPC.MaxConnections)
	c.HTTP.RateLimit = utils.EnvInt("NFTSNAP_HTTP_RATE_LIMIT", c.HTTP.RateLimit)
	c.HTTP.MaxConnections = utils.EnvInt("NFTSNAP_HTTP_MAX_CONNECTIONS", c.HTTP.MaxConnections)
	c.HTTP.IPFSGateway = utils.Env("NFTSNAP_IPFS_GATEWAY", c.HTTP.IPFSGateway)

	c.Cache.Backend = utils.Env("NFTSNAP_CACHE_BACKEND", c.Cache.Backend)
	c.Cache.Dir = utils.Env("NFTSNAP_CACHE_DIR", c.Cache.Dir)
	c.Cache.RedisURL = utils.Env("NFTSNAP_REDIS_URL", c.Cache.RedisURL)
	c.Cache.Codec = utils.Env("NFTSNAP_CACHE_CODEC", c.Cache.Codec)
	c.Cache.SnapshotIntervalSeconds = utils.EnvInt("NFTSNAP_SNAPSHOT_INTERVAL_SECONDS", c.Cache.SnapshotIntervalSeconds)

	c.ClickHouse.DSN = utils.Env("NFTSNAP_CLICKHOUSE_DSN", c.ClickHouse.DSN)
	c.ClickHouse.Database = utils.Env("NFTSNAP_CLICKHOUSE_DATABASE", c.ClickHouse.Database)
	c.Status.Listen = utils.Env("NFTSNAP_STATUS_LISTEN", c.Status.Listen)

	c.Log.Level = utils.Env("NFTSNAP_LOG_LEVEL", c.Log.Level)
	c.Log.Encoding = utils.Env("NFTSNAP_LOG_ENCODING", c.Log.Encoding)
	c.Log.File = utils.Env("NFTSNAP_LOG_FILE", c.Log.File)
}

func (c *Config) normalize() {
	c.RPC.Endpoints = utils.Dedup(c.RPC.Endpoints)
	c.RPC.ListingEndpoints = utils.Dedup(c.RPC.ListingEndpoints)
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	c.Cache.Codec = strings.ToLower(strings.TrimSpace(c.Cache.Codec))
	if c.Cache.Codec == "" {
		c.Cache.Codec = "json"
		if c.Cache.Backend == BackendRedis {
			c.Cache.Codec = "msgpack"
		}
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Encoding = strings.ToLower(strings.TrimSpace(c.Log.Encoding))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
