package config

import (
	"github.com/nftsnap/nftsnap/pkg/errs"
)

// Validate ensures the configuration is usable. Failures are *errs.ConfigError.
func (c *Config) Validate() error {
	if err := c.validateLimits("rpc", c.RPC.Limits); err != nil {
		return err
	}
	if err := c.validateLimits("http", c.HTTP.Limits); err != nil {
		return err
	}
	if len(c.RPC.Endpoints) == 0 {
		return errs.Config("rpc.endpoints", "at least one endpoint is required")
	}
	if c.RPC.BatchSize < 1 || c.RPC.BatchSize > 100 {
		return errs.Config("rpc.batch_size", "must be between 1 and 100, got %d", c.RPC.BatchSize)
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errs.Config("log.level", "unknown level %q", c.Log.Level)
	}
	switch c.Log.Encoding {
	case "console", "json":
	default:
		return errs.Config("log.encoding", "unknown encoding %q", c.Log.Encoding)
	}
	return nil
}

func (c *Config) validateLimits(section string, l Limits) error {
	switch {
	case l.TimeoutSeconds <= 0:
		return errs.Config(section+".timeout_seconds", "must be positive")
	case l.MaxConnections <= 0:
		return errs.Config(section+".max_connections", "must be positive")
	case l.RateLimit < 0:
		return errs.Config(section+".rate_limit", "must not be negative")
	case l.RateLimit > 0 && l.RateWindowSeconds <= 0:
		return errs.Config(section+".rate_window_seconds", "must be positive when rate_limit is set")
	case l.MaxAttempts < 1:
		return errs.Config(section+".max_attempts", "must be at least 1")
	case l.MinBackoffMS < 0 || l.MaxBackoffMS < l.MinBackoffMS:
		return errs.Config(section+".max_backoff_ms", "must be at least min_backoff_ms")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			return errs.Config("cache.dir", "required for the file backend")
		}
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return errs.Config("cache.redis_url", "required for the redis backend")
		}
	default:
		return errs.Config("cache.backend", "unknown backend %q", c.Cache.Backend)
	}
	switch c.Cache.Codec {
	case "json", "msgpack":
	default:
		return errs.Config("cache.codec", "unknown codec %q", c.Cache.Codec)
	}
	if c.Cache.SnapshotIntervalSeconds < 1 {
		return errs.Config("cache.snapshot_interval_seconds", "must be at least 1")
	}
	return nil
}
