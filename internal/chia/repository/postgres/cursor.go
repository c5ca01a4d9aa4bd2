package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

// ReadCursor returns the committed value of a watermark.
func (r *Repository) ReadCursor(ctx context.Context, cursor model.Cursor) (int64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("read_cursor", err, start)
	}()

	if !cursor.Valid() {
		err = fmt.Errorf("%w: %q", model.ErrUnknownCursor, cursor)
		return 0, err
	}

	var value int64
	if err = r.conn.QueryRow(ctx, readCursorQuery(cursor)).Scan(&value); err != nil {
		return 0, fmt.Errorf("read cursor %s: %w", cursor, err)
	}
	return value, nil
}

// WriteCursor raises a watermark to value. Lower values leave it unchanged.
func (r *Repository) WriteCursor(ctx context.Context, cursor model.Cursor, value int64) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("write_cursor", err, start)
	}()

	err = writeCursor(ctx, r.conn, cursor, value)
	return err
}

func writeCursor(ctx context.Context, exec execer, cursor model.Cursor, value int64) error {
	if !cursor.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownCursor, cursor)
	}

	tag, err := exec.Exec(ctx, writeCursorQuery(cursor), value)
	if err != nil {
		return fmt.Errorf("write cursor %s: %w", cursor, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("write cursor %s: sync_state row missing", cursor)
	}
	return nil
}

// cursor names are validated against a fixed set before being spliced into SQL.
func readCursorQuery(cursor model.Cursor) string {
	return fmt.Sprintf(`SELECT %s FROM sync_state WHERE id = 1`, cursor)
}

func writeCursorQuery(cursor model.Cursor) string {
	return fmt.Sprintf(`UPDATE sync_state SET %[1]s = GREATEST(%[1]s, $1) WHERE id = 1`, cursor)
}
