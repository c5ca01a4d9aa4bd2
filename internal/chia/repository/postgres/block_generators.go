package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/safe"
)

const (
	unparsedBlocksQuery = `
SELECT index, generator, generator_ref_list
FROM sync_block
WHERE is_tx_block AND NOT tx_parsed
	AND NOT (index = ANY($2))
ORDER BY index DESC
LIMIT $1`

	blockGeneratorsQuery = `
SELECT index, generator, generator_ref_list
FROM sync_block
WHERE index = ANY($1)`
)

// UnparsedBlocks returns up to limit transaction blocks not decoded yet, newest
// first, leaving out the heights in skip.
func (r *Repository) UnparsedBlocks(ctx context.Context, limit int, skip []uint32) ([]model.BlockGenerator, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("unparsed_blocks", err, start)
	}()

	rows, err := r.conn.Query(ctx, unparsedBlocksQuery, limit, heightsToInt64(skip))
	if err != nil {
		return nil, fmt.Errorf("query unparsed blocks: %w", err)
	}

	var blocks []model.BlockGenerator
	blocks, err = scanBlockGenerators(rows)
	return blocks, err
}

// BlockGenerators loads the generators stored at heights in one query. Missing
// heights are simply absent from the result.
func (r *Repository) BlockGenerators(ctx context.Context, heights []uint32) ([]model.BlockGenerator, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("block_generators", err, start)
	}()

	if len(heights) == 0 {
		return nil, nil
	}

	rows, err := r.conn.Query(ctx, blockGeneratorsQuery, heightsToInt64(heights))
	if err != nil {
		return nil, fmt.Errorf("query block generators: %w", err)
	}

	var blocks []model.BlockGenerator
	blocks, err = scanBlockGenerators(rows)
	return blocks, err
}

func scanBlockGenerators(rows pgx.Rows) ([]model.BlockGenerator, error) {
	defer rows.Close()

	var blocks []model.BlockGenerator
	for rows.Next() {
		var (
			index     int64
			generator []byte
			refs      []int64
		)
		if err := rows.Scan(&index, &generator, &refs); err != nil {
			return nil, fmt.Errorf("scan block generator: %w", err)
		}

		height, err := safe.Uint32(index)
		if err != nil {
			return nil, fmt.Errorf("block index %d: %w", index, err)
		}
		block := model.BlockGenerator{Index: height, PackedGenerator: generator}
		for _, ref := range refs {
			refHeight, err := safe.Uint32(ref)
			if err != nil {
				return nil, fmt.Errorf("block %d ref %d: %w", index, ref, err)
			}
			block.GeneratorRefList = append(block.GeneratorRefList, refHeight)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate block generators: %w", err)
	}
	return blocks, nil
}
