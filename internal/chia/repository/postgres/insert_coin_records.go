package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

var coinRecordColumns = []string{
	"id",
	"coin_name",
	"confirmed_index",
	"spent_index",
	"coinbase",
	"puzzle_hash",
	"coin_parent",
	"amount",
	"timestamp",
}

// InsertCoinRecords copies a page of mirror coin rows. The page is committed as
// a whole, so max(id) afterwards is the new insertion watermark.
func (r *Repository) InsertCoinRecords(ctx context.Context, records []model.CoinRecord) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_coin_records", err, start)
	}()

	if len(records) == 0 {
		return nil
	}

	_, err = r.conn.CopyFrom(ctx, pgx.Identifier{"sync_coin_record"}, coinRecordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			c := records[i]
			return []any{
				c.ID,
				c.CoinName.Bytes(),
				c.ConfirmedIndex,
				c.SpentIndex,
				c.Coinbase,
				c.PuzzleHash.Bytes(),
				c.CoinParent.Bytes(),
				int64(c.Amount), //nolint:gosec // amounts are stored bit-preserving
				c.Timestamp,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy coin records: %w", err)
	}
	return nil
}
