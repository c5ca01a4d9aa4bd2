package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

const (
	uniqueViolationCode  = "23505"
	coinClassCoinNameKey = "sync_coin_class_coin_name_key"
)

var coinClassColumns = []string{"coin_name", "puzzle", "parsed_puzzle", "solution", "mods", "analysis"}

// InsertCoinClasses bulk inserts decoded coins. A coin name that is already
// indexed fails the whole batch with model.ErrDuplicateCoinClass.
func (r *Repository) InsertCoinClasses(ctx context.Context, classes []model.CoinClass) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_coin_classes", err, start)
	}()

	if len(classes) == 0 {
		return nil
	}

	_, err = r.conn.CopyFrom(ctx, pgx.Identifier{"sync_coin_class"}, coinClassColumns,
		pgx.CopyFromSlice(len(classes), func(i int) ([]any, error) {
			c := classes[i]
			return []any{
				c.CoinName.Bytes(),
				c.PackedPuzzle,
				nullableJSON(c.ParsedPuzzle),
				c.PackedSolution,
				c.Mods,
				nullableJSON(c.Analysis),
			}, nil
		}))
	if err != nil {
		if isDuplicateCoinClass(err) {
			err = fmt.Errorf("copy coin classes: %w: %w", model.ErrDuplicateCoinClass, err)
			return err
		}
		return fmt.Errorf("copy coin classes: %w", err)
	}
	return nil
}

func isDuplicateCoinClass(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolationCode &&
		pgErr.ConstraintName == coinClassCoinNameKey
}
