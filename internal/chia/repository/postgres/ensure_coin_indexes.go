package postgres

import (
	"context"
	"fmt"
	"time"
)

// Lookup indexes slow the initial bulk copy down, so they are only built once
// it has caught up.
var coinIndexQueries = []string{
	`CREATE INDEX IF NOT EXISTS idx_sync_coin_record_coin_name ON sync_coin_record (coin_name)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_coin_record_puzzle_hash ON sync_coin_record (puzzle_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_coin_record_coin_parent ON sync_coin_record (coin_parent)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_coin_record_spent_index ON sync_coin_record (spent_index)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_hint_record_hint ON sync_hint_record (hint)`,
	`CREATE INDEX IF NOT EXISTS idx_sync_hint_record_coin_name ON sync_hint_record (coin_name)`,
}

// EnsureCoinIndexes creates the coin and hint lookup indexes if missing.
func (r *Repository) EnsureCoinIndexes(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("ensure_coin_indexes", err, start)
	}()

	for _, query := range coinIndexQueries {
		if _, err = r.conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("create coin index: %w", err)
		}
	}
	return nil
}
