package model

import "errors"

// Cursor names a watermark column of the single sync_state row.
type Cursor string

const (
	CursorSpentIndex       Cursor = "spent_index"
	CursorBlockIndex       Cursor = "block_index"
	CursorAnalysis         Cursor = "analysis_index"
	CursorSingletonRecord  Cursor = "singleton_record_index"
	CursorSingletonHistory Cursor = "singleton_history_index"
)

var (
	// ErrUnknownCursor is returned for cursor names outside the watermark row.
	ErrUnknownCursor = errors.New("unknown cursor")
	// ErrDuplicateCoinClass signals a coin class insert colliding on coin name,
	// which happens when a reorg re-decodes coins already indexed.
	ErrDuplicateCoinClass = errors.New("duplicate coin class")
)

// Valid reports whether c is one of the known cursors.
func (c Cursor) Valid() bool {
	switch c {
	case CursorSpentIndex, CursorBlockIndex, CursorAnalysis, CursorSingletonRecord, CursorSingletonHistory:
		return true
	default:
		return false
	}
}
