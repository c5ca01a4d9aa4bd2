package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/compress"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/safe"
	"go.uber.org/zap"
)

// BlockSyncService copies full blocks from the node into the index, one
// height range per batch, stopping one block below the node's peak.
type BlockSyncService struct {
	logger     *zap.Logger
	repository BlockRepository
	node       FullNode
	metrics    StageMetrics
	cfg        StageConfig
}

func NewBlockSyncService(
	repo BlockRepository,
	node FullNode,
	metrics StageMetrics,
	cfg StageConfig,
	logger *zap.Logger,
) (*BlockSyncService, error) {
	if metrics == nil {
		return nil, errors.New("block sync metrics is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &BlockSyncService{
		logger:     logger.Named(StageBlockSync),
		repository: repo,
		node:       node,
		metrics:    metrics,
		cfg:        cfg,
	}, nil
}

func (s *BlockSyncService) Run(ctx context.Context) error {
	if s.cfg.BatchSize == 0 {
		return nil
	}

	state, err := s.node.GetChainState(ctx)
	if err != nil {
		s.logger.Warn("cannot retrieve chain state from full node", zap.Error(err))
		return fmt.Errorf("get chain state: %w", err)
	}
	// the peak block may still be reorganized
	peak := int64(state.PeakHeight) - 1

	cursor, err := s.repository.ReadCursor(ctx, model.CursorBlockIndex)
	if err != nil {
		return fmt.Errorf("read block cursor: %w", err)
	}
	start := cursor + 1
	if start > peak {
		return nil
	}
	s.logger.Info("sync blocks",
		zap.Int64("from", start),
		zap.Int64("to", peak),
		zap.Int64("pending", peak-start+1),
	)

	budget := clock.NewBudget(s.cfg.budget())
	current := start
	for current <= peak && !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			return err
		}

		count := min(int64(s.cfg.BatchSize), peak+1-current)
		started := time.Now()
		top, err := s.syncRange(ctx, current, count)
		if err != nil {
			s.metrics.ObserveBatch(err, 0, started)
			return err
		}
		s.metrics.ObserveBatch(nil, int(top-current+1), started)
		s.metrics.ObserveWatermark(string(model.CursorBlockIndex), top)
		s.logger.Info("batch processed blocks",
			zap.Int64("from", current),
			zap.Int64("to", top),
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("eta", budget.ETA(top-start+1, peak-start+1)),
		)
		current = top + 1
	}
	return nil
}

func (s *BlockSyncService) syncRange(ctx context.Context, start, count int64) (int64, error) {
	from, err := safe.Uint32(start)
	if err != nil {
		return 0, fmt.Errorf("block range start: %w", err)
	}
	n, err := safe.Uint32(count)
	if err != nil {
		return 0, fmt.Errorf("block range count: %w", err)
	}

	blocks, err := s.node.GetBlocks(ctx, from, n)
	if err != nil {
		return 0, fmt.Errorf("get blocks [%d, %d): %w", start, start+count, err)
	}
	if len(blocks) == 0 {
		return 0, fmt.Errorf("full node returned no blocks for [%d, %d)", start, start+count)
	}

	records := make([]model.BlockRecord, 0, len(blocks))
	var top uint32
	for _, b := range blocks {
		record, err := compactBlock(b)
		if err != nil {
			return 0, err
		}
		records = append(records, record)
		top = max(top, b.Index)
	}

	if err := s.repository.InsertBlocks(ctx, records, int64(top)); err != nil {
		return 0, fmt.Errorf("insert blocks [%d, %d]: %w", start, top, err)
	}
	return int64(top), nil
}

func compactBlock(b model.FullBlock) (model.BlockRecord, error) {
	record := model.BlockRecord{
		Index:            b.Index,
		IsTxBlock:        b.IsTxBlock,
		Weight:           b.Weight,
		Iterations:       b.Iterations,
		Cost:             b.Cost,
		Fee:              b.Fee,
		GeneratorRefList: b.GeneratorRefList,
		Metadata:         b.Metadata,
	}
	if b.Generator == nil {
		return record, nil
	}

	packed, err := compress.Compress(b.Generator)
	if err != nil {
		return model.BlockRecord{}, fmt.Errorf("compress generator of block %d: %w", b.Index, err)
	}
	record.PackedGenerator = packed
	return record, nil
}
