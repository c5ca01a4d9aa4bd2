package postgres

import (
	"context"
	"fmt"
	"time"
)

const markBlocksParsedQuery = `UPDATE sync_block SET tx_parsed = true WHERE index = ANY($1)`

// MarkBlocksParsed flags the given heights as decoded.
func (r *Repository) MarkBlocksParsed(ctx context.Context, heights []uint32) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("mark_blocks_parsed", err, start)
	}()

	if len(heights) == 0 {
		return nil
	}

	if _, err = r.conn.Exec(ctx, markBlocksParsedQuery, heightsToInt64(heights)); err != nil {
		return fmt.Errorf("mark blocks parsed: %w", err)
	}
	return nil
}
