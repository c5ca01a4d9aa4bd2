package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const (
	createSingletonHistoryTableQuery = `
CREATE TEMPORARY TABLE _tmp_singleton_history (
	coin_class_id         bigint NOT NULL,
	singleton_coin_name   bytea  NOT NULL,
	this_coin_name        bytea  NOT NULL,
	this_coin_spent_index bigint NOT NULL,
	next_coin_name        bytea,
	p2_owner              bytea,
	did_owner             bytea,
	type                  text   NOT NULL
) ON COMMIT DROP`

	insertSingletonHistoryQuery = `
INSERT INTO sync_singleton_history (
	coin_class_id,
	singleton_coin_name,
	this_coin_name,
	this_coin_spent_index,
	next_coin_name,
	p2_owner,
	did_owner,
	type
)
SELECT
	coin_class_id,
	singleton_coin_name,
	this_coin_name,
	this_coin_spent_index,
	next_coin_name,
	p2_owner,
	did_owner,
	type
FROM _tmp_singleton_history
ON CONFLICT (coin_class_id) DO NOTHING`

	backfillSingletonSpentIndexQuery = `
UPDATE sync_singleton_history sh
SET this_coin_spent_index = c.spent_index
FROM sync_coin_record c
WHERE c.coin_name = sh.this_coin_name
	AND sh.this_coin_spent_index = 0
	AND c.spent_index > 0`
)

var singletonHistoryColumns = []string{
	"coin_class_id",
	"singleton_coin_name",
	"this_coin_name",
	"this_coin_spent_index",
	"next_coin_name",
	"p2_owner",
	"did_owner",
	"type",
}

// InsertSingletonHistories appends history generations. Rows already present
// for a coin class are kept as they are. The singleton_history_index cursor is
// raised to watermark in the same transaction.
func (r *Repository) InsertSingletonHistories(ctx context.Context, histories []model.SingletonHistory, watermark int64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_singleton_histories", err, start)
	}()

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if len(histories) > 0 {
			if _, err := tx.Exec(ctx, createSingletonHistoryTableQuery); err != nil {
				return fmt.Errorf("create singleton history table: %w", err)
			}
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"_tmp_singleton_history"}, singletonHistoryColumns,
				pgx.CopyFromSlice(len(histories), func(i int) ([]any, error) {
					h := histories[i]
					return []any{
						h.CoinClassID,
						h.SingletonCoinName.Bytes(),
						h.ThisCoinName.Bytes(),
						h.ThisCoinSpentIndex,
						nullableBytes(h.NextCoinName),
						nullableBytes(h.P2Owner),
						nullableBytes(h.DIDOwner),
						string(h.Type),
					}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy singleton histories: %w", err)
			}
			if _, err := tx.Exec(ctx, insertSingletonHistoryQuery); err != nil {
				return fmt.Errorf("insert singleton histories: %w", err)
			}
		}
		return writeCursor(ctx, tx, model.CursorSingletonHistory, watermark)
	})
	return err
}

// BackfillSingletonSpentIndex copies spend heights onto history rows recorded
// before their coin was spent or copied.
func (r *Repository) BackfillSingletonSpentIndex(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("backfill_singleton_spent_index", err, start)
	}()

	tag, err := r.conn.Exec(ctx, backfillSingletonSpentIndexQuery)
	if err != nil {
		return 0, fmt.Errorf("backfill singleton spent index: %w", err)
	}
	return tag.RowsAffected(), nil
}
