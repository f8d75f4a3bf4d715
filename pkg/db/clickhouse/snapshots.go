package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nftsnap/nftsnap/pkg/token"
)

const SnapshotTable = "token_snapshots"

// SnapshotRow is one token as exported. Rank 0 and Rarity 0 mean unranked.
type SnapshotRow struct {
	Collection string            `ch:"collection"`
	Token      string            `ch:"token"`
	Name       string            `ch:"name"`
	Holder     string            `ch:"holder"`
	Amount     uint64            `ch:"amount"`
	Image      string            `ch:"image"`
	Rank       uint32            `ch:"rank"`
	Rarity     float64           `ch:"rarity"`
	Traits     map[string]string `ch:"traits"`
	SnapshotAt time.Time         `ch:"snapshot_at"`
}

// SnapshotColumns lists insert columns in table order.
const SnapshotColumns = "collection, token, name, holder, amount, image, rank, rarity, traits, snapshot_at"

// SnapshotTableDDL returns the CREATE TABLE statement for database.
func SnapshotTableDDL(database string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	collection String,
	token String,
	name String,
	holder String,
	amount UInt64,
	image String,
	rank UInt32,
	rarity Float64,
	traits Map(String, String),
	snapshot_at DateTime64(3)
) ENGINE = %s(snapshot_at)
ORDER BY (collection, token)`, database, SnapshotTable, ReplacingMergeTree)
}

// SnapshotRows converts tokens into export rows stamped with at.
func SnapshotRows(collection string, at time.Time, tokens []*token.Token) []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(tokens))
	for _, t := range tokens {
		row := SnapshotRow{
			Collection: collection,
			Token:      t.Token,
			Name:       t.DisplayName(),
			Holder:     t.Holder(),
			Amount:     t.Amount,
			Image:      t.Image,
			Traits:     make(map[string]string, len(t.Traits)),
			SnapshotAt: at,
		}
		if t.Rank != nil {
			row.Rank = uint32(*t.Rank)
		}
		if t.Rarity != nil {
			row.Rarity = *t.Rarity
		}
		for _, tr := range t.Traits {
			row.Traits[tr.Name] = tr.Value
		}
		rows = append(rows, row)
	}
	return rows
}

// EnsureSnapshotTable creates the database and snapshot table.
func (c *Client) EnsureSnapshotTable(ctx context.Context) error {
	if err := c.CreateDbIfNotExists(ctx); err != nil {
		return fmt.Errorf("create database %s: %w", c.Database, err)
	}
	if err := c.Exec(ctx, SnapshotTableDDL(c.Database)); err != nil {
		return fmt.Errorf("create table %s.%s: %w", c.Database, SnapshotTable, err)
	}
	return nil
}

// InsertSnapshot writes rows in a single batch. Rows sharing (collection, token)
// with an older snapshot_at replace earlier rows on merge.
func (c *Client) InsertSnapshot(ctx context.Context, rows []SnapshotRow) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := c.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s (%s)", c.Database, SnapshotTable, SnapshotColumns))
	if err != nil {
		return fmt.Errorf("prepare snapshot batch: %w", err)
	}
	for _, r := range rows {
		if err := batch.AppendStruct(&r); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append snapshot row %s: %w", r.Token, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send snapshot batch: %w", err)
	}
	c.Logger.Info("Exported snapshot",
		zap.String("table", SnapshotTable),
		zap.Int("rows", len(rows)),
	)
	return nil
}
