package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/compress"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/workerpool"
	"go.uber.org/zap"
)

// TxParseService decodes the generators of unparsed transaction blocks into
// coin classes. Blocks that fail to decode stay unparsed and are retried on a
// later run. A block rejected maxDecodeAttempts times is left out of the
// unparsed pages until the process restarts, so it cannot starve older blocks.
type TxParseService struct {
	logger      *zap.Logger
	repository  DecodeRepository
	decoder     Decoder
	metrics     StageMetrics
	cfg         StageConfig
	workerCount int

	// attempts counts permanent decode failures per height. Runs never overlap.
	attempts map[uint32]int
}

func NewTxParseService(
	repo DecodeRepository,
	decoder Decoder,
	metrics StageMetrics,
	cfg StageConfig,
	logger *zap.Logger,
) (*TxParseService, error) {
	if metrics == nil {
		return nil, errors.New("tx parse metrics is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &TxParseService{
		logger:      logger.Named(StageDecode),
		repository:  repo,
		decoder:     decoder,
		metrics:     metrics,
		cfg:         cfg,
		workerCount: runtime.NumCPU(),
		attempts:    make(map[uint32]int),
	}, nil
}

func (s *TxParseService) Run(ctx context.Context) error {
	if s.cfg.BatchSize == 0 {
		return nil
	}

	budget := clock.NewBudget(s.cfg.budget())
	var processed int64
	for !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		page, err := s.parsePage(ctx)
		s.metrics.ObserveBatch(err, page.coins, started)
		if err != nil {
			return err
		}
		if page.blocks == 0 {
			return nil
		}

		processed += int64(page.parsed)
		s.logger.Info("processed blocks",
			zap.Uint32("from", page.lowest),
			zap.Uint32("to", page.highest),
			zap.Int("parsed", page.parsed),
			zap.Int("failed", page.blocks-page.parsed),
			zap.Int("coins", page.coins),
			zap.Duration("elapsed", time.Since(started)),
			zap.Duration("eta", budget.ETA(processed, processed+int64(page.lowest))),
		)
		if page.parsed == 0 {
			s.logger.Warn("no block of the page could be decoded, waiting for the next run")
			return nil
		}
	}
	return nil
}

type parsedPage struct {
	blocks  int
	parsed  int
	coins   int
	lowest  uint32
	highest uint32
}

type blockCoins struct {
	index   uint32
	classes []model.CoinClass
}

func (s *TxParseService) parsePage(ctx context.Context) (parsedPage, error) {
	blocks, err := s.repository.UnparsedBlocks(ctx, s.cfg.BatchSize, s.skippedHeights())
	if err != nil {
		return parsedPage{}, fmt.Errorf("load unparsed blocks: %w", err)
	}
	if len(blocks) == 0 {
		return parsedPage{}, nil
	}

	refs, err := s.loadRefs(ctx, blocks)
	if err != nil {
		return parsedPage{}, err
	}

	page := parsedPage{blocks: len(blocks), lowest: blocks[0].Index, highest: blocks[0].Index}
	for _, b := range blocks {
		page.lowest = min(page.lowest, b.Index)
		page.highest = max(page.highest, b.Index)
	}
	s.logger.Info("parsing tx from blocks",
		zap.Uint32("from", page.lowest),
		zap.Uint32("to", page.highest),
		zap.Int("blocks", len(blocks)),
		zap.Int("refs", len(refs)),
	)

	results := workerpool.Map(ctx, s.workerCount, blocks, func(ctx context.Context, b model.BlockGenerator) (blockCoins, error) {
		return s.decodeBlock(ctx, b, refs)
	})
	if err := ctx.Err(); err != nil {
		return parsedPage{}, err
	}

	ok, failed := workerpool.Split(results)
	for _, f := range failed {
		s.logFailedBlock(f.Item, f.Err)
		s.recordFailure(f.Item.Index, f.Err)
	}
	s.metrics.ObserveItemFailures(len(failed))

	classes := make([]model.CoinClass, 0)
	seen := make(map[model.Bytes32]struct{})
	heights := make([]uint32, 0, len(ok))
	for _, r := range ok {
		heights = append(heights, r.Value.index)
		for _, c := range r.Value.classes {
			if _, dup := seen[c.CoinName]; dup {
				continue
			}
			seen[c.CoinName] = struct{}{}
			classes = append(classes, c)
		}
	}

	if err := s.storeClasses(ctx, classes); err != nil {
		return parsedPage{}, err
	}
	if len(heights) > 0 {
		if err := s.repository.MarkBlocksParsed(ctx, heights); err != nil {
			return parsedPage{}, fmt.Errorf("mark blocks parsed: %w", err)
		}
	}

	page.parsed = len(heights)
	page.coins = len(classes)
	return page, nil
}

// recordFailure counts a permanent decode failure. Transient decoder errors do
// not count against the block.
func (s *TxParseService) recordFailure(height uint32, err error) {
	if isTransient(err) {
		return
	}
	if s.attempts == nil {
		s.attempts = make(map[uint32]int)
	}
	s.attempts[height]++
	if s.attempts[height] == maxDecodeAttempts {
		s.logger.Warn("block keeps failing to decode, skipping it until restart",
			zap.Uint32("index", height),
			zap.Int("attempts", maxDecodeAttempts),
		)
	}
}

// skippedHeights lists the blocks that exhausted their decode attempts, in ascending order.
func (s *TxParseService) skippedHeights() []uint32 {
	skipped := make([]uint32, 0)
	for height, n := range s.attempts {
		if n >= maxDecodeAttempts {
			skipped = append(skipped, height)
		}
	}
	slices.Sort(skipped)
	return skipped
}

// loadRefs fetches every generator referenced by the page in one query, keyed by height.
func (s *TxParseService) loadRefs(ctx context.Context, blocks []model.BlockGenerator) (map[uint32][]byte, error) {
	heights := make([]uint32, 0)
	for _, b := range blocks {
		heights = append(heights, b.GeneratorRefList...)
	}
	if len(heights) == 0 {
		return map[uint32][]byte{}, nil
	}
	slices.Sort(heights)
	heights = slices.Compact(heights)

	generators, err := s.repository.BlockGenerators(ctx, heights)
	if err != nil {
		return nil, fmt.Errorf("load referenced generators: %w", err)
	}
	refs := make(map[uint32][]byte, len(generators))
	for _, g := range generators {
		refs[g.Index] = g.PackedGenerator
	}
	return refs, nil
}

func (s *TxParseService) decodeBlock(ctx context.Context, b model.BlockGenerator, refs map[uint32][]byte) (blockCoins, error) {
	out := blockCoins{index: b.Index}
	if len(b.PackedGenerator) == 0 {
		return out, nil
	}

	generator, err := compress.Decompress(b.PackedGenerator)
	if err != nil {
		return out, fmt.Errorf("decompress generator: %w", err)
	}
	refGenerators := make([][]byte, 0, len(b.GeneratorRefList))
	for _, h := range b.GeneratorRefList {
		packed, ok := refs[h]
		if !ok || len(packed) == 0 {
			return out, fmt.Errorf("referenced generator of block %d is not available", h)
		}
		ref, err := compress.Decompress(packed)
		if err != nil {
			return out, fmt.Errorf("decompress referenced generator of block %d: %w", h, err)
		}
		refGenerators = append(refGenerators, ref)
	}

	coins, err := s.decoder.ParseBlock(ctx, generator, refGenerators)
	if err != nil {
		return out, fmt.Errorf("parse block: %w", err)
	}

	out.classes = make([]model.CoinClass, 0, len(coins))
	for _, c := range coins {
		class, err := toCoinClass(c)
		if err != nil {
			return out, err
		}
		out.classes = append(out.classes, class)
	}
	return out, nil
}

func toCoinClass(c model.DecodedCoin) (model.CoinClass, error) {
	puzzle, err := compress.Compress(c.Puzzle)
	if err != nil {
		return model.CoinClass{}, fmt.Errorf("compress puzzle of %s: %w", c.CoinName.Hex(), err)
	}
	solution, err := compress.Compress(c.Solution)
	if err != nil {
		return model.CoinClass{}, fmt.Errorf("compress solution of %s: %w", c.CoinName.Hex(), err)
	}

	var parsed json.RawMessage
	if c.ParsedPuzzle != nil {
		parsed, err = json.Marshal(c.ParsedPuzzle)
		if err != nil {
			return model.CoinClass{}, fmt.Errorf("marshal parsed puzzle of %s: %w", c.CoinName.Hex(), err)
		}
	}

	return model.CoinClass{
		CoinName:       c.CoinName,
		PackedPuzzle:   puzzle,
		ParsedPuzzle:   parsed,
		PackedSolution: solution,
		Mods:           c.Mods,
		Analysis:       c.Analysis,
	}, nil
}

// storeClasses inserts classes. A coin name collision means a reorg re-decoded
// coins that are already indexed: the colliding page is cleared and written again once.
func (s *TxParseService) storeClasses(ctx context.Context, classes []model.CoinClass) error {
	if len(classes) == 0 {
		return nil
	}

	err := s.repository.InsertCoinClasses(ctx, classes)
	if err == nil {
		return nil
	}
	if !errors.Is(err, model.ErrDuplicateCoinClass) {
		return fmt.Errorf("insert coin classes: %w", err)
	}

	s.logger.Warn("duplicate coin name found, maybe fork happened, clean related coins", zap.Int("coins", len(classes)))
	names := make([]model.Bytes32, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.CoinName)
	}
	removed, err := s.repository.DeleteCoinClasses(ctx, names)
	if err != nil {
		return fmt.Errorf("clean forked coin classes: %w", err)
	}
	s.logger.Info("forked coin classes removed", zap.Int64("removed", removed))

	if err := s.repository.InsertCoinClasses(ctx, classes); err != nil {
		return fmt.Errorf("insert coin classes after fork cleanup: %w", err)
	}
	return nil
}

func (s *TxParseService) logFailedBlock(b model.BlockGenerator, err error) {
	generator, decErr := compress.Decompress(b.PackedGenerator)
	if decErr != nil {
		generator = b.PackedGenerator
	}
	s.logger.Warn("block format cannot be recognized",
		zap.Uint32("index", b.Index),
		zap.Int("refs", len(b.GeneratorRefList)),
		zap.String("generator", model.EncodeHex(generator)),
		zap.Error(err),
	)
}
