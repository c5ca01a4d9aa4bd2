package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const (
	createSingletonRecordTableQuery = `
CREATE TEMPORARY TABLE _tmp_singleton_record (
	last_coin_class_id     bigint NOT NULL,
	singleton_coin_name    bytea  NOT NULL,
	singleton_create_index bigint NOT NULL,
	bootstrap_coin_name    bytea  NOT NULL,
	creator_puzzle_hash    bytea,
	creator_did            bytea,
	type                   text   NOT NULL
) ON COMMIT DROP`

	upsertSingletonRecordQuery = `
INSERT INTO sync_singleton_record (
	last_coin_class_id,
	singleton_coin_name,
	singleton_create_index,
	bootstrap_coin_name,
	creator_puzzle_hash,
	creator_did,
	type
)
SELECT
	last_coin_class_id,
	singleton_coin_name,
	singleton_create_index,
	bootstrap_coin_name,
	creator_puzzle_hash,
	creator_did,
	type
FROM _tmp_singleton_record
ON CONFLICT (singleton_coin_name) DO UPDATE
SET last_coin_class_id = GREATEST(sync_singleton_record.last_coin_class_id, EXCLUDED.last_coin_class_id)`
)

var singletonRecordColumns = []string{
	"last_coin_class_id",
	"singleton_coin_name",
	"singleton_create_index",
	"bootstrap_coin_name",
	"creator_puzzle_hash",
	"creator_did",
	"type",
}

// UpsertSingletonRecords inserts new singleton lineages and advances
// last_coin_class_id of known ones, never lowering it. The
// singleton_record_index cursor is raised to watermark in the same
// transaction. records must not repeat a singleton coin name.
func (r *Repository) UpsertSingletonRecords(ctx context.Context, records []model.SingletonRecord, watermark int64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("upsert_singleton_records", err, start)
	}()

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if len(records) > 0 {
			if _, err := tx.Exec(ctx, createSingletonRecordTableQuery); err != nil {
				return fmt.Errorf("create singleton record table: %w", err)
			}
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"_tmp_singleton_record"}, singletonRecordColumns,
				pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
					s := records[i]
					return []any{
						s.LastCoinClassID,
						s.SingletonCoinName.Bytes(),
						s.CreateIndex,
						s.BootstrapCoinName.Bytes(),
						nullableBytes(s.CreatorPuzzleHash),
						nullableBytes(s.CreatorDID),
						string(s.Type),
					}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy singleton records: %w", err)
			}
			if _, err := tx.Exec(ctx, upsertSingletonRecordQuery); err != nil {
				return fmt.Errorf("upsert singleton records: %w", err)
			}
		}
		return writeCursor(ctx, tx, model.CursorSingletonRecord, watermark)
	})
	return err
}
