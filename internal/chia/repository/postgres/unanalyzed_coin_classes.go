package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

// The mods pattern is a literal so the planner can use idx_sync_coin_class_unanalyzed.
const unanalyzedCoinClassesQuery = `
SELECT id, coin_name, puzzle, solution, mods
FROM sync_coin_class
WHERE analysis IS NULL
	AND mods LIKE 'singleton_top_layer%'
	AND id > $1
ORDER BY id
LIMIT $2`

// UnanalyzedCoinClasses returns singleton-family coin classes after id that have no analysis yet.
func (r *Repository) UnanalyzedCoinClasses(ctx context.Context, after int64, limit int) ([]model.CoinClass, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("unanalyzed_coin_classes", err, start)
	}()

	rows, err := r.conn.Query(ctx, unanalyzedCoinClassesQuery, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query unanalyzed coin classes: %w", err)
	}
	defer rows.Close()

	var classes []model.CoinClass
	for rows.Next() {
		var (
			c    model.CoinClass
			name []byte
		)
		if err = rows.Scan(&c.ID, &name, &c.PackedPuzzle, &c.PackedSolution, &c.Mods); err != nil {
			return nil, fmt.Errorf("scan coin class: %w", err)
		}
		if c.CoinName, err = model.Bytes32FromSlice(name); err != nil {
			return nil, fmt.Errorf("coin class %d name: %w", c.ID, err)
		}
		classes = append(classes, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coin classes: %w", err)
	}
	return classes, nil
}
