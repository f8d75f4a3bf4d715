package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nftsnap/nftsnap/pkg/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nftsnap.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{DefaultRPCEndpoint}, cfg.RPC.Endpoints)
	assert.Equal(t, cfg.RPC.Endpoints, cfg.RPC.Listing())
	assert.Equal(t, 145, cfg.RPC.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RPC.RateWindow())
	assert.Equal(t, 30*time.Second, cfg.RPC.Timeout())
	assert.Equal(t, 60*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 100, cfg.RPC.BatchSize)
	assert.Equal(t, 20*time.Second, cfg.Cache.SnapshotInterval())
	assert.Equal(t, "json", cfg.Cache.Codec)
	assert.Equal(t, "snapshot.csv", cfg.Output.CSV)

	rpcRetry := cfg.RPC.Retry()
	assert.Equal(t, 3, rpcRetry.MaxAttempts)
	assert.Equal(t, time.Second, rpcRetry.MinDelay)
	assert.Equal(t, 10*time.Second, rpcRetry.MaxDelay)

	httpRetry := cfg.HTTP.Retry()
	assert.Equal(t, 10, httpRetry.MaxAttempts)
	assert.Equal(t, 4*time.Second, httpRetry.MinDelay)
	assert.Equal(t, 32*time.Second, httpRetry.MaxDelay)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[rpc]
endpoints = ["https://a.example", "https://a.example", "https://b.example"]
listing_endpoints = ["https://gpa.example"]
rate_limit = 40
batch_size = 50

[http]
ipfs_gateway = "https://gw.example/ipfs/"
max_attempts = 4

[cache]
backend = "redis"
redis_url = "redis://localhost:6379/0"

[log]
level = "DEBUG"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPC.Endpoints)
	assert.Equal(t, []string{"https://gpa.example"}, cfg.RPC.Listing())
	assert.Equal(t, 40, cfg.RPC.RateLimit)
	assert.Equal(t, 30, cfg.RPC.RateWindowSeconds, "unset fields keep defaults")
	assert.Equal(t, 50, cfg.RPC.BatchSize)
	assert.Equal(t, "https://gw.example/ipfs/", cfg.HTTP.IPFSGateway)
	assert.Equal(t, 4, cfg.HTTP.MaxAttempts)
	assert.Equal(t, BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "msgpack", cfg.Cache.Codec)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[rpc]
endpoints = ["https://file.example"]
`)
	t.Setenv("NFTSNAP_RPC_ENDPOINTS", "https://env-a.example, https://env-b.example")
	t.Setenv("NFTSNAP_CACHE_DIR", "/tmp/nftsnap-cache")
	t.Setenv("NFTSNAP_SNAPSHOT_INTERVAL_SECONDS", "5")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://env-a.example", "https://env-b.example"}, cfg.RPC.Endpoints)
	assert.Equal(t, "/tmp/nftsnap-cache", cfg.Cache.Dir)
	assert.Equal(t, 5*time.Second, cfg.Cache.SnapshotInterval())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errs.IsConfig(err))

	_, err = Load(writeConfig(t, "[rpc]\nbogus = 1\n"))
	assert.True(t, errs.IsConfig(err), "unknown keys are rejected")

	_, err = Load(writeConfig(t, "not toml ["))
	assert.True(t, errs.IsConfig(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"no endpoints", func(c *Config) { c.RPC.Endpoints = nil }, "rpc.endpoints"},
		{"batch too large", func(c *Config) { c.RPC.BatchSize = 101 }, "rpc.batch_size"},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"no attempts", func(c *Config) { c.RPC.MaxAttempts = 0 }, "rpc.max_attempts"},
		{"inverted backoff", func(c *Config) { c.HTTP.MaxBackoffMS = 1 }, "http.max_backoff_ms"},
		{"rate without window", func(c *Config) { c.RPC.RateWindowSeconds = 0 }, "rpc.rate_window_seconds"},
		{"unknown backend", func(c *Config) { c.Cache.Backend = "s3" }, "cache.backend"},
		{"redis without url", func(c *Config) { c.Cache.Backend = BackendRedis }, "cache.redis_url"},
		{"unknown codec", func(c *Config) { c.Cache.Codec = "xml" }, "cache.codec"},
		{"zero interval", func(c *Config) { c.Cache.SnapshotIntervalSeconds = 0 }, "cache.snapshot_interval_seconds"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad encoding", func(c *Config) { c.Log.Encoding = "xml" }, "log.encoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.normalize()
			tt.mutate(&cfg)

			err := cfg.Validate()
			var ce *errs.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	cfg := Default()
	cfg.normalize()
	cfg.RPC.RateLimit = 0
	cfg.RPC.RateWindowSeconds = 0
	assert.NoError(t, cfg.Validate(), "a zero rate limit disables limiting")
}
