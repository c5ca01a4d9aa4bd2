// Package mirror reads coin and hint rows from the full node's local blockchain database.
package mirror

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	_ "modernc.org/sqlite"
)

// Source is a read-only view over the node's blockchain_v2 SQLite file.
// Rows are paged by rowid, which only grows while the node appends.
type Source struct {
	db      *sql.DB
	metrics Metrics
}

// Open opens the database file at path in read-only mode.
func Open(path string, metrics Metrics) (*Source, error) {
	if path == "" {
		return nil, errors.New("mirror database path is required")
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mirror database: %w", err)
	}
	db.SetMaxOpenConns(4)

	return &Source{db: db, metrics: metrics}, nil
}

// Close releases the database handle.
func (s *Source) Close() error {
	return s.db.Close()
}

// Ping verifies the database file is readable.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CountCoinRows returns the highest coin_record rowid.
func (s *Source) CountCoinRows(ctx context.Context) (count int64, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("count_coin_rows", err, started)
	}()

	if err = s.db.QueryRowContext(ctx, `SELECT coalesce(max(rowid), 0) FROM coin_record`).Scan(&count); err != nil {
		return 0, fmt.Errorf("query coin row count: %w", err)
	}
	return count, nil
}

// CountHintRows returns the highest hints rowid.
func (s *Source) CountHintRows(ctx context.Context) (count int64, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("count_hint_rows", err, started)
	}()

	if err = s.db.QueryRowContext(ctx, `SELECT coalesce(max(rowid), 0) FROM hints`).Scan(&count); err != nil {
		return 0, fmt.Errorf("query hint row count: %w", err)
	}
	return count, nil
}

// PeakSpentHeight returns the highest spend height recorded in the mirror.
func (s *Source) PeakSpentHeight(ctx context.Context) (height int64, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("peak_spent_height", err, started)
	}()

	if err = s.db.QueryRowContext(ctx, `SELECT coalesce(max(spent_index), 0) FROM coin_record`).Scan(&height); err != nil {
		return 0, fmt.Errorf("query peak spent height: %w", err)
	}
	return height, nil
}

// ReadCoinRows returns up to limit coin rows with rowid greater than offset, in rowid order.
func (s *Source) ReadCoinRows(ctx context.Context, offset int64, limit int) (records []model.CoinRecord, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("read_coin_rows", err, started)
	}()

	const query = `
SELECT rowid, coin_name, confirmed_index, spent_index, coinbase, puzzle_hash, coin_parent, amount, timestamp
FROM coin_record
WHERE rowid > ?
ORDER BY rowid
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query coin rows: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	records = make([]model.CoinRecord, 0, limit)
	for rows.Next() {
		var (
			r                            model.CoinRecord
			coinName, puzzleHash, parent []byte
			amount                       []byte
		)
		if err = rows.Scan(&r.ID, &coinName, &r.ConfirmedIndex, &r.SpentIndex, &r.Coinbase,
			&puzzleHash, &parent, &amount, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan coin row: %w", err)
		}
		if r.CoinName, err = model.Bytes32FromSlice(coinName); err != nil {
			return nil, fmt.Errorf("coin row %d name: %w", r.ID, err)
		}
		if r.PuzzleHash, err = model.Bytes32FromSlice(puzzleHash); err != nil {
			return nil, fmt.Errorf("coin row %d puzzle hash: %w", r.ID, err)
		}
		if r.CoinParent, err = model.Bytes32FromSlice(parent); err != nil {
			return nil, fmt.Errorf("coin row %d parent: %w", r.ID, err)
		}
		if r.Amount, err = decodeAmount(amount); err != nil {
			return nil, fmt.Errorf("coin row %d amount: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coin rows: %w", err)
	}
	return records, nil
}

// ReadHintRows returns up to limit hint rows with rowid greater than offset, in rowid order.
func (s *Source) ReadHintRows(ctx context.Context, offset int64, limit int) (records []model.HintRecord, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("read_hint_rows", err, started)
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT rowid, coin_id, hint FROM hints WHERE rowid > ? ORDER BY rowid LIMIT ?`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("query hint rows: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	records = make([]model.HintRecord, 0, limit)
	for rows.Next() {
		var (
			r        model.HintRecord
			coinName []byte
		)
		if err = rows.Scan(&r.ID, &coinName, &r.Hint); err != nil {
			return nil, fmt.Errorf("scan hint row: %w", err)
		}
		if r.CoinName, err = model.Bytes32FromSlice(coinName); err != nil {
			return nil, fmt.Errorf("hint row %d coin id: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hint rows: %w", err)
	}
	return records, nil
}

// ReadSpentChanges returns up to limit spends at or above minHeight, lowest heights first.
func (s *Source) ReadSpentChanges(ctx context.Context, minHeight int64, limit int) (changes []model.SpentChange, err error) {
	started := time.Now()
	defer func() {
		s.metrics.Observe("read_spent_changes", err, started)
	}()

	const query = `
SELECT coin_name, spent_index
FROM coin_record
WHERE spent_index >= ? AND spent_index > 0
ORDER BY spent_index
LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, minHeight, limit)
	if err != nil {
		return nil, fmt.Errorf("query spent changes: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", closeErr)
		}
	}()

	changes = make([]model.SpentChange, 0, limit)
	for rows.Next() {
		var (
			c        model.SpentChange
			coinName []byte
		)
		if err = rows.Scan(&coinName, &c.SpentIndex); err != nil {
			return nil, fmt.Errorf("scan spent change: %w", err)
		}
		if c.CoinName, err = model.Bytes32FromSlice(coinName); err != nil {
			return nil, fmt.Errorf("spent change coin name: %w", err)
		}
		changes = append(changes, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spent changes: %w", err)
	}
	return changes, nil
}

// the node stores amounts as 8-byte big-endian blobs.
func decodeAmount(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("expected 8 amount bytes, got %d", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}
