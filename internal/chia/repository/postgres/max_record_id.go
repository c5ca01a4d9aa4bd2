package postgres

import (
	"context"
	"fmt"
	"time"
)

const (
	maxCoinRecordIDQuery = `SELECT COALESCE(max(id), 0) FROM sync_coin_record`
	maxHintRecordIDQuery = `SELECT COALESCE(max(id), 0) FROM sync_hint_record`
)

// MaxCoinRecordID returns the highest mirror rowid copied into sync_coin_record.
func (r *Repository) MaxCoinRecordID(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("max_coin_record_id", err, start)
	}()

	var id int64
	if err = r.conn.QueryRow(ctx, maxCoinRecordIDQuery).Scan(&id); err != nil {
		return 0, fmt.Errorf("query max coin record id: %w", err)
	}
	return id, nil
}

// MaxHintRecordID returns the highest mirror rowid copied into sync_hint_record.
func (r *Repository) MaxHintRecordID(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("max_hint_record_id", err, start)
	}()

	var id int64
	if err = r.conn.QueryRow(ctx, maxHintRecordIDQuery).Scan(&id); err != nil {
		return 0, fmt.Errorf("query max hint record id: %w", err)
	}
	return id, nil
}
