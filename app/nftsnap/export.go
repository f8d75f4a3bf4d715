package nftsnap

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/db/clickhouse"
	"github.com/nftsnap/nftsnap/pkg/token"
)

// Exporter publishes the ranked collection somewhere outside the cache.
type Exporter interface {
	Export(ctx context.Context, collection string, tokens []*token.Token) error
}

type clickHouseExporter struct {
	logger   *zap.Logger
	dsn      string
	database string
}

// NewClickHouseExporter connects lazily on every Export, so an unreachable
// server only costs the export.
func NewClickHouseExporter(logger *zap.Logger, dsn, database string) Exporter {
	return &clickHouseExporter{logger: logger, dsn: dsn, database: database}
}

func (e *clickHouseExporter) Export(ctx context.Context, collection string, tokens []*token.Token) error {
	client, err := clickhouse.New(ctx, e.logger, e.dsn, e.database)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			e.logger.Warn("Failed to close clickhouse connection", zap.Error(err))
		}
	}()

	if err := client.EnsureSnapshotTable(ctx); err != nil {
		return err
	}
	return client.InsertSnapshot(ctx, clickhouse.SnapshotRows(collection, time.Now().UTC(), tokens))
}
