package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const (
	createAnalysisTableQuery = `
CREATE TEMPORARY TABLE _tmp_analysis_update (
	id       bigint NOT NULL,
	analysis jsonb  NOT NULL
) ON COMMIT DROP`

	applyAnalysisQuery = `
UPDATE sync_coin_class c
SET analysis = t.analysis
FROM _tmp_analysis_update t
WHERE c.id = t.id`
)

// UpdateCoinClassAnalysis stores analysis payloads and raises analysis_index to
// watermark in the same transaction.
func (r *Repository) UpdateCoinClassAnalysis(ctx context.Context, updates []model.AnalysisUpdate, watermark int64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("update_coin_class_analysis", err, start)
	}()

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		if len(updates) > 0 {
			if _, err := tx.Exec(ctx, createAnalysisTableQuery); err != nil {
				return fmt.Errorf("create analysis table: %w", err)
			}
			_, err := tx.CopyFrom(ctx, pgx.Identifier{"_tmp_analysis_update"}, []string{"id", "analysis"},
				pgx.CopyFromSlice(len(updates), func(i int) ([]any, error) {
					return []any{updates[i].ID, updates[i].Analysis}, nil
				}))
			if err != nil {
				return fmt.Errorf("copy analysis updates: %w", err)
			}
			if _, err := tx.Exec(ctx, applyAnalysisQuery); err != nil {
				return fmt.Errorf("apply analysis updates: %w", err)
			}
		}
		return writeCursor(ctx, tx, model.CursorAnalysis, watermark)
	})
	return err
}
