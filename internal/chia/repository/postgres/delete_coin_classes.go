package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const deleteCoinClassesQuery = `DELETE FROM sync_coin_class WHERE coin_name = ANY($1)`

// DeleteCoinClasses removes the coin classes with the given names, returning how many were removed.
func (r *Repository) DeleteCoinClasses(ctx context.Context, names []model.Bytes32) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("delete_coin_classes", err, start)
	}()

	if len(names) == 0 {
		return 0, nil
	}

	raw := make([][]byte, len(names))
	for i := range names {
		raw[i] = names[i].Bytes()
	}

	tag, err := r.conn.Exec(ctx, deleteCoinClassesQuery, raw)
	if err != nil {
		return 0, fmt.Errorf("delete coin classes: %w", err)
	}
	return tag.RowsAffected(), nil
}
