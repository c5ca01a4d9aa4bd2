package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

var blockColumns = []string{
	"index",
	"is_tx_block",
	"weight",
	"iterations",
	"cost",
	"fee",
	"generator",
	"generator_ref_list",
	"block_info",
}

// InsertBlocks stores a page of blocks and raises block_index to watermark in
// the same transaction.
func (r *Repository) InsertBlocks(ctx context.Context, blocks []model.BlockRecord, watermark int64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_blocks", err, start)
	}()

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if len(blocks) > 0 {
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"sync_block"}, blockColumns,
				pgx.CopyFromSlice(len(blocks), func(i int) ([]any, error) {
					b := blocks[i]
					return []any{
						int64(b.Index),
						b.IsTxBlock,
						b.Weight,
						b.Iterations,
						b.Cost,
						b.Fee,
						nullableBytes(b.PackedGenerator),
						heightsToInt64(b.GeneratorRefList),
						b.Metadata,
					}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy blocks: %w", err)
			}
		}
		return writeCursor(ctx, tx, model.CursorBlockIndex, watermark)
	})
	return err
}

func heightsToInt64(heights []uint32) []int64 {
	out := make([]int64, len(heights))
	for i, h := range heights {
		out[i] = int64(h)
	}
	return out
}
