package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

var hintRecordColumns = []string{"id", "coin_name", "hint"}

// InsertHintRecords copies a page of mirror hint rows.
func (r *Repository) InsertHintRecords(ctx context.Context, records []model.HintRecord) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_hint_records", err, start)
	}()

	if len(records) == 0 {
		return nil
	}

	_, err = r.conn.CopyFrom(ctx, pgx.Identifier{"sync_hint_record"}, hintRecordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			h := records[i]
			return []any{h.ID, h.CoinName.Bytes(), h.Hint}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy hint records: %w", err)
	}
	return nil
}
