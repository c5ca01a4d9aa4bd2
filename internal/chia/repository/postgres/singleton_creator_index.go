package postgres

import (
	"context"
	"fmt"
	"time"
)

const (
	singletonCreatorIndexName = "idx_sync_singleton_record_creator_puzzle_hash"

	singletonCreatorIndexExistsQuery = `SELECT to_regclass($1) IS NOT NULL`
	createSingletonCreatorIndexQuery = `
CREATE INDEX IF NOT EXISTS ` + singletonCreatorIndexName + `
	ON sync_singleton_record (creator_puzzle_hash DESC NULLS LAST)`
)

// SingletonCreatorIndexExists reports whether the creator lookup index is built.
func (r *Repository) SingletonCreatorIndexExists(ctx context.Context) (bool, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("singleton_creator_index_exists", err, start)
	}()

	var exists bool
	if err = r.conn.QueryRow(ctx, singletonCreatorIndexExistsQuery, singletonCreatorIndexName).Scan(&exists); err != nil {
		return false, fmt.Errorf("check singleton creator index: %w", err)
	}
	return exists, nil
}

// CreateSingletonCreatorIndex builds the creator lookup index.
func (r *Repository) CreateSingletonCreatorIndex(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("create_singleton_creator_index", err, start)
	}()

	if _, err = r.conn.Exec(ctx, createSingletonCreatorIndexQuery); err != nil {
		return fmt.Errorf("create singleton creator index: %w", err)
	}
	return nil
}
