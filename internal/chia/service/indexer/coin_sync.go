package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"go.uber.org/zap"
)

// CoinSyncService copies coin and hint rows from the ledger mirror and then
// backfills spend heights of coins copied while still unspent.
type CoinSyncService struct {
	logger         *zap.Logger
	repository     CoinRepository
	source         MirrorSource
	metrics        StageMetrics
	cfg            CoinSyncConfig
	indexesEnsured atomic.Bool
}

func NewCoinSyncService(
	repo CoinRepository,
	source MirrorSource,
	metrics StageMetrics,
	cfg CoinSyncConfig,
	logger *zap.Logger,
) (*CoinSyncService, error) {
	if metrics == nil {
		return nil, errors.New("coin sync metrics is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.BatchCount == 0 {
		cfg.BatchCount = defaultSyncBatchCount
	}

	return &CoinSyncService{
		logger:     logger.Named(StageCoinSync),
		repository: repo,
		source:     source,
		metrics:    metrics,
		cfg:        cfg,
	}, nil
}

func (s *CoinSyncService) Run(ctx context.Context) error {
	if s.cfg.BatchSize == 0 && s.cfg.SpentBatchSize == 0 {
		return nil
	}

	complete, err := s.syncTables(ctx)
	if err != nil {
		return err
	}
	if !complete {
		return nil
	}

	if !s.indexesEnsured.Load() {
		if err := s.repository.EnsureCoinIndexes(ctx); err != nil {
			return fmt.Errorf("ensure coin indexes: %w", err)
		}
		s.indexesEnsured.Store(true)
		s.logger.Info("coin indexes ensured")
	}

	if s.cfg.SpentBatchSize == 0 {
		return nil
	}
	return s.syncSpentIndexes(ctx)
}

// rowTable describes one mirror table copied by rowid.
type rowTable struct {
	name     string
	source   func(ctx context.Context) (int64, error)
	target   func(ctx context.Context) (int64, error)
	copyPage func(ctx context.Context, offset int64, limit int) (last int64, rows int, err error)
}

func (s *CoinSyncService) syncTables(ctx context.Context) (bool, error) {
	if s.cfg.BatchSize == 0 {
		return true, nil
	}
	if err := s.initSpentCursor(ctx); err != nil {
		return false, err
	}

	complete := true
	for _, table := range []rowTable{
		{
			name:     "coin records",
			source:   s.source.CountCoinRows,
			target:   s.repository.MaxCoinRecordID,
			copyPage: s.copyCoinPage,
		},
		{
			name:     "hint records",
			source:   s.source.CountHintRows,
			target:   s.repository.MaxHintRecordID,
			copyPage: s.copyHintPage,
		},
	} {
		done, err := s.syncTable(ctx, table)
		if err != nil {
			return false, err
		}
		complete = complete && done
	}
	return complete, nil
}

// initSpentCursor starts the spend backfill at the mirror's current peak: rows
// copied from now on already carry their spend height.
func (s *CoinSyncService) initSpentCursor(ctx context.Context) error {
	cursor, err := s.repository.ReadCursor(ctx, model.CursorSpentIndex)
	if err != nil {
		return fmt.Errorf("read spent cursor: %w", err)
	}
	if cursor != 0 {
		return nil
	}

	peak, err := s.source.PeakSpentHeight(ctx)
	if err != nil {
		return fmt.Errorf("read mirror peak spent height: %w", err)
	}
	if peak-1 <= 0 {
		return nil
	}
	if err := s.repository.WriteCursor(ctx, model.CursorSpentIndex, peak-1); err != nil {
		return fmt.Errorf("init spent cursor: %w", err)
	}
	s.logger.Info("spent cursor initialized", zap.Int64("height", peak-1))
	return nil
}

func (s *CoinSyncService) syncTable(ctx context.Context, table rowTable) (bool, error) {
	sourceCount, err := table.source(ctx)
	if err != nil {
		return false, fmt.Errorf("count mirror %s: %w", table.name, err)
	}
	targetCount, err := table.target(ctx)
	if err != nil {
		return false, fmt.Errorf("count indexed %s: %w", table.name, err)
	}
	if sourceCount <= targetCount {
		return true, nil
	}

	batch := int64(s.cfg.BatchSize)
	total := (sourceCount - targetCount + batch - 1) / batch
	pages := min(total, int64(s.cfg.BatchCount))
	s.logger.Info("sync "+table.name,
		zap.Int64("from", targetCount),
		zap.Int64("to", sourceCount),
		zap.Int64("pending", sourceCount-targetCount),
		zap.Int64("batches", pages),
	)

	budget := clock.NewBudget(0)
	offset := targetCount
	for i := int64(0); i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		started := time.Now()
		last, rows, err := table.copyPage(ctx, offset, s.cfg.BatchSize)
		s.metrics.ObserveBatch(err, rows, started)
		if err != nil {
			return false, fmt.Errorf("copy %s after %d: %w", table.name, offset, err)
		}
		if rows == 0 {
			return true, nil
		}

		s.logger.Info("batch processed "+table.name,
			zap.Int64("from", offset),
			zap.Int64("to", last),
			zap.Int("rows", rows),
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("eta", budget.ETA(last-targetCount, sourceCount-targetCount)),
		)
		offset = last
	}
	return total == pages, nil
}

func (s *CoinSyncService) copyCoinPage(ctx context.Context, offset int64, limit int) (int64, int, error) {
	records, err := s.source.ReadCoinRows(ctx, offset, limit)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return offset, 0, nil
	}
	if err := s.repository.InsertCoinRecords(ctx, records); err != nil {
		return 0, 0, err
	}
	return records[len(records)-1].ID, len(records), nil
}

func (s *CoinSyncService) copyHintPage(ctx context.Context, offset int64, limit int) (int64, int, error) {
	records, err := s.source.ReadHintRows(ctx, offset, limit)
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return offset, 0, nil
	}
	if err := s.repository.InsertHintRecords(ctx, records); err != nil {
		return 0, 0, err
	}
	return records[len(records)-1].ID, len(records), nil
}

func (s *CoinSyncService) syncSpentIndexes(ctx context.Context) error {
	peak, err := s.source.PeakSpentHeight(ctx)
	if err != nil {
		return fmt.Errorf("read mirror peak spent height: %w", err)
	}
	// the mirror may still be writing its top block
	sourcePeak := peak - 1

	cursor, err := s.repository.ReadCursor(ctx, model.CursorSpentIndex)
	if err != nil {
		return fmt.Errorf("read spent cursor: %w", err)
	}
	start := cursor + 1
	if start >= sourcePeak {
		return nil
	}
	s.logger.Info("sync spent records",
		zap.Int64("from", start),
		zap.Int64("to", sourcePeak),
		zap.Int64("pending", sourcePeak-start),
	)

	budget := clock.NewBudget(s.cfg.Timeout / budgetDivisor)
	limit := s.cfg.SpentBatchSize
	current := start
	for current < sourcePeak && !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		changes, err := s.source.ReadSpentChanges(ctx, current, limit)
		if err != nil {
			s.metrics.ObserveBatch(err, 0, started)
			return fmt.Errorf("read spent changes from %d: %w", current, err)
		}
		if len(changes) == 0 {
			return nil
		}

		top, kept := completeHeights(changes, limit, sourcePeak)
		if top < current {
			if limit >= maxSpentBatchSize {
				err := fmt.Errorf("spent height %d holds more than %d changes", current, maxSpentBatchSize)
				s.metrics.ObserveBatch(err, 0, started)
				return err
			}
			limit = min(limit*2, maxSpentBatchSize)
			s.logger.Info("spent page holds a single height, growing page", zap.Int64("height", current), zap.Int("limit", limit))
			continue
		}

		affected, err := s.repository.UpdateSpentIndexes(ctx, kept, top)
		s.metrics.ObserveBatch(err, len(kept), started)
		if err != nil {
			return fmt.Errorf("update spent indexes up to %d: %w", top, err)
		}
		s.metrics.ObserveWatermark(string(model.CursorSpentIndex), top)
		s.logger.Info("batch processed spent records",
			zap.Int64("from", current),
			zap.Int64("to", top),
			zap.Int64("affected", affected),
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("eta", budget.ETA(top-start+1, sourcePeak-start+1)),
		)

		current = top + 1
		limit = s.cfg.SpentBatchSize
	}
	return nil
}

// completeHeights returns the highest height whose changes are all present in
// a page read with limit, capped at peak, along with the changes up to it. A
// full page may have cut its last height short, so that height is dropped.
func completeHeights(changes []model.SpentChange, limit int, peak int64) (int64, []model.SpentChange) {
	var maxHeight int64
	for _, c := range changes {
		maxHeight = max(maxHeight, c.SpentIndex)
	}

	top := maxHeight
	if len(changes) >= limit {
		top = maxHeight - 1
	}
	top = min(top, peak)

	kept := make([]model.SpentChange, 0, len(changes))
	for _, c := range changes {
		if c.SpentIndex <= top {
			kept = append(kept, c)
		}
	}
	return top, kept
}
