// Package nftsnap wires configuration into the clients, schedulers, store and
// pipeline of one snapshot run.
package nftsnap

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/config"
	"github.com/nftsnap/nftsnap/pkg/logging"
	"github.com/nftsnap/nftsnap/pkg/offchain"
	"github.com/nftsnap/nftsnap/pkg/pipeline"
	"github.com/nftsnap/nftsnap/pkg/redis"
	"github.com/nftsnap/nftsnap/pkg/rpc"
	"github.com/nftsnap/nftsnap/pkg/scheduler"
	"github.com/nftsnap/nftsnap/pkg/store"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger
	RunID  string

	// Listing serves getProgramAccounts; RPC serves everything else.
	RPC     rpc.Client
	Listing rpc.Client

	RPCScheduler  *scheduler.Scheduler
	HTTPScheduler *scheduler.Scheduler

	Store    *store.Store
	Pipeline *pipeline.Pipeline
	Exporter Exporter

	// Out receives the reports; logs and progress go to stderr.
	Out io.Writer

	redis *redis.Client
}

// Initialize builds the application from a validated configuration.
func Initialize(ctx context.Context, cfg *config.Config) (*App, error) {
	runID := uuid.NewString()
	logger, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		File:     cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))

	factory := rpc.NewHTTPFactory(rpc.Opts{
		Timeout:  cfg.RPC.Timeout(),
		MaxConns: cfg.RPC.MaxConnections,
	})
	docs := offchain.NewClient(offchain.Opts{
		Timeout:     cfg.HTTP.Timeout(),
		MaxConns:    cfg.HTTP.MaxConnections,
		IPFSGateway: cfg.HTTP.IPFSGateway,
	})

	app := &App{
		Config:  cfg,
		Logger:  logger,
		RunID:   runID,
		RPC:     factory.NewClient(cfg.RPC.Endpoints),
		Listing: factory.NewClient(cfg.RPC.Listing()),
		Out:     os.Stdout,
	}

	backend, codec, err := app.cacheBackend(ctx)
	if err != nil {
		return nil, err
	}
	app.Store = store.New(logger, backend, codec)

	app.RPCScheduler = scheduler.New(logger, scheduler.Config{
		Name:           "rpc",
		MaxConcurrency: cfg.RPC.MaxConnections,
		RateLimit:      cfg.RPC.RateLimit,
		RateWindow:     cfg.RPC.RateWindow(),
		Retry:          cfg.RPC.Retry(),
	})
	app.HTTPScheduler = scheduler.New(logger, scheduler.Config{
		Name:           "http",
		MaxConcurrency: cfg.HTTP.MaxConnections,
		RateLimit:      cfg.HTTP.RateLimit,
		RateWindow:     cfg.HTTP.RateWindow(),
		Retry:          cfg.HTTP.Retry(),
	})
	app.Pipeline = pipeline.New(logger, pipeline.Config{
		RPC:              app.RPC,
		Documents:        docs,
		RPCScheduler:     app.RPCScheduler,
		HTTPScheduler:    app.HTTPScheduler,
		Store:            app.Store,
		BatchSize:        cfg.RPC.BatchSize,
		SnapshotInterval: cfg.Cache.SnapshotInterval(),
	})

	if cfg.ClickHouse.DSN != "" {
		app.Exporter = NewClickHouseExporter(logger, cfg.ClickHouse.DSN, cfg.ClickHouse.Database)
	}

	logger.Debug("Application initialized",
		zap.Strings("rpc_endpoints", cfg.RPC.Endpoints),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("cache_codec", cfg.Cache.Codec),
	)
	return app, nil
}

func (a *App) cacheBackend(ctx context.Context) (store.Backend, store.Codec, error) {
	var codec store.Codec = store.JSONCodec{}
	if a.Config.Cache.Codec == "msgpack" {
		codec = store.MsgpackCodec{}
	}

	if a.Config.Cache.Backend != config.BackendRedis {
		return store.NewFileBackend(a.Config.Cache.Dir, codec.Ext()), codec, nil
	}
	client, err := redis.NewClient(ctx, a.Logger, a.Config.Cache.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect cache backend: %w", err)
	}
	a.redis = client
	return store.NewRedisBackend(client), codec, nil
}

// Close releases worker pools and connections.
func (a *App) Close() {
	if a.RPCScheduler != nil {
		a.RPCScheduler.Close()
	}
	if a.HTTPScheduler != nil {
		a.HTTPScheduler.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis connection", zap.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
