package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const (
	createSpentChangeTableQuery = `
CREATE TEMPORARY TABLE _tmp_spent_change (
	coin_name   bytea  NOT NULL,
	spent_index bigint NOT NULL
) ON COMMIT DROP`

	applySpentChangeQuery = `
UPDATE sync_coin_record c
SET spent_index = t.spent_index
FROM _tmp_spent_change t
WHERE c.coin_name = t.coin_name
	AND c.spent_index = 0
	AND t.spent_index > 0`
)

// UpdateSpentIndexes applies spend heights to unspent coins and raises the
// spent_index cursor to watermark in the same transaction. Coins already spent
// or not copied yet are left alone. It returns the number of coins updated.
func (r *Repository) UpdateSpentIndexes(ctx context.Context, changes []model.SpentChange, watermark int64) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("update_spent_indexes", err, start)
	}()

	var updated int64
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if len(changes) > 0 {
			if _, err := tx.Exec(ctx, createSpentChangeTableQuery); err != nil {
				return fmt.Errorf("create spent change table: %w", err)
			}
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"_tmp_spent_change"}, []string{"coin_name", "spent_index"},
				pgx.CopyFromSlice(len(changes), func(i int) ([]any, error) {
					return []any{changes[i].CoinName.Bytes(), changes[i].SpentIndex}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy spent changes: %w", err)
			}
			tag, err := tx.Exec(ctx, applySpentChangeQuery)
			if err != nil {
				return fmt.Errorf("apply spent changes: %w", err)
			}
			updated = tag.RowsAffected()
		}
		return writeCursor(ctx, tx, model.CursorSpentIndex, watermark)
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
