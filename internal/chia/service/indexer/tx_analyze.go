package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/decoder"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/compress"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/workerpool"
	"go.uber.org/zap"
)

type TxAnalyzeService struct {
	logger      *zap.Logger
	repository  AnalyzeRepository
	decoder     Decoder
	metrics     StageMetrics
	cfg         StageConfig
	workerCount int
}

func NewTxAnalyzeService(
	repo AnalyzeRepository,
	decoder Decoder,
	metrics StageMetrics,
	cfg StageConfig,
	logger *zap.Logger,
) (*TxAnalyzeService, error) {
	if metrics == nil {
		return nil, errors.New("tx analyze metrics is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &TxAnalyzeService{
		logger:      logger.Named(StageAnalyze),
		repository:  repo,
		decoder:     decoder,
		metrics:     metrics,
		cfg:         cfg,
		workerCount: runtime.NumCPU(),
	}, nil
}

func (s *TxAnalyzeService) Run(ctx context.Context) error {
	if s.cfg.BatchSize == 0 {
		return nil
	}

	budget := clock.NewBudget(s.cfg.budget())
	for !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		updates, more, err := s.analyzePage(ctx)
		s.metrics.ObserveBatch(err, updates, started)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

func (s *TxAnalyzeService) analyzePage(ctx context.Context) (int, bool, error) {
	cursor, err := s.repository.ReadCursor(ctx, model.CursorAnalysis)
	if err != nil {
		return 0, false, fmt.Errorf("read analysis cursor: %w", err)
	}
	classes, err := s.repository.UnanalyzedCoinClasses(ctx, cursor, s.cfg.BatchSize)
	if err != nil {
		return 0, false, fmt.Errorf("load unanalyzed coin classes: %w", err)
	}
	if len(classes) == 0 {
		return 0, false, nil
	}

	classes = uniqueByID(classes)
	watermark := classes[len(classes)-1].ID
	s.logger.Info("analyzing coin classes",
		zap.Int64("from", classes[0].ID),
		zap.Int64("to", watermark),
	)

	results := workerpool.Map(ctx, s.workerCount, classes, s.analyze)

	updates := make([]model.AnalysisUpdate, 0, len(results))
	var (
		held     int
		heldErr  error
		rejected int
	)
	for _, r := range results {
		switch {
		case r.Err == nil && len(r.Value) > 0:
			updates = append(updates, model.AnalysisUpdate{ID: r.Item.ID, Analysis: r.Value})
		case r.Err != nil && isTransient(r.Err):
			if held == 0 {
				heldErr = r.Err
				watermark = r.Item.ID - 1
			}
			held++
		default:
			rejected++
			s.logger.Warn("tx analyze failed",
				zap.String("coin_name", r.Item.CoinName.Hex()),
				zap.Error(r.Err),
			)
			updates = append(updates, model.AnalysisUpdate{ID: r.Item.ID, Analysis: model.AnalysisUnavailable})
		}
	}
	s.metrics.ObserveItemFailures(rejected + held)
	watermark = max(watermark, cursor)

	if len(updates) > 0 || watermark > cursor {
		if err := s.repository.UpdateCoinClassAnalysis(ctx, updates, watermark); err != nil {
			return 0, false, fmt.Errorf("update coin class analysis: %w", err)
		}
		s.metrics.ObserveWatermark(string(model.CursorAnalysis), watermark)
	}
	s.logger.Info("tx analyzed", zap.Int("updates", len(updates)), zap.Int("rejected", rejected), zap.Int("held", held))

	if held > 0 {
		return len(updates), false, fmt.Errorf("%d coin class(es) left for a later run: %w", held, heldErr)
	}
	return len(updates), true, nil
}

func (s *TxAnalyzeService) analyze(ctx context.Context, c model.CoinClass) (json.RawMessage, error) {
	puzzle, err := compress.Decompress(c.PackedPuzzle)
	if err != nil {
		return nil, fmt.Errorf("decompress puzzle: %w", err)
	}
	solution, err := compress.Decompress(c.PackedSolution)
	if err != nil {
		return nil, fmt.Errorf("decompress solution: %w", err)
	}
	return s.decoder.AnalyzeTx(ctx, model.CoinSpend{
		CoinName: c.CoinName,
		Puzzle:   puzzle,
		Solution: solution,
		Mods:     c.Mods,
	})
}

func isTransient(err error) bool {
	return errors.Is(err, decoder.ErrUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// uniqueByID keeps the first class of every id, preserving order.
func uniqueByID(classes []model.CoinClass) []model.CoinClass {
	seen := make(map[int64]struct{}, len(classes))
	out := classes[:0:0]
	for _, c := range classes {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
