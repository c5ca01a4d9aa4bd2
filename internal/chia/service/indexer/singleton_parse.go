package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/internal/clock"
	"go.uber.org/zap"
)

// SingletonParseService resolves analyzed singleton coin classes into the
// current state of each lineage and its append-only generation history.
type SingletonParseService struct {
	logger     *zap.Logger
	repository SingletonRepository
	metrics    StageMetrics
	cfg        StageConfig
}

func NewSingletonParseService(
	repo SingletonRepository,
	metrics StageMetrics,
	cfg StageConfig,
	logger *zap.Logger,
) (*SingletonParseService, error) {
	if metrics == nil {
		return nil, errors.New("singleton parse metrics is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &SingletonParseService{
		logger:     logger.Named(StageSingletonParse),
		repository: repo,
		metrics:    metrics,
		cfg:        cfg,
	}, nil
}

func (s *SingletonParseService) Run(ctx context.Context) error {
	if s.cfg.BatchSize == 0 {
		return nil
	}

	backfilled, err := s.repository.BackfillSingletonSpentIndex(ctx)
	if err != nil {
		return fmt.Errorf("backfill singleton spent index: %w", err)
	}
	s.logger.Info("ensured coin spent index", zap.Int64("updated", backfilled))

	budget := clock.NewBudget(s.cfg.budget())
	drained, err := s.drain(ctx, budget, s.parseRecords)
	if err != nil {
		return err
	}
	if _, err := s.drain(ctx, budget, s.parseHistories); err != nil {
		return err
	}

	if !drained {
		return nil
	}
	return s.ensureCreatorIndex(ctx)
}

// pageState tells drain whether another page should follow.
type pageState int

const (
	pageDone pageState = iota
	pageMore
	// pageHeld means work remains that cannot be resolved until an upstream
	// stage catches up.
	pageHeld
)

// drain runs page until it reports no more work or the budget is spent. It
// reports whether the backlog was fully drained.
func (s *SingletonParseService) drain(ctx context.Context, budget *clock.Budget, page func(context.Context) (int, pageState, error)) (bool, error) {
	for !budget.Exhausted() {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		started := time.Now()
		items, state, err := page(ctx)
		s.metrics.ObserveBatch(err, items, started)
		if err != nil {
			return false, err
		}
		switch state {
		case pageDone:
			return true, nil
		case pageHeld:
			return false, nil
		}
	}
	return false, nil
}

func (s *SingletonParseService) parseRecords(ctx context.Context) (int, pageState, error) {
	started := time.Now()
	cursor, err := s.repository.ReadCursor(ctx, model.CursorSingletonRecord)
	if err != nil {
		return 0, pageDone, fmt.Errorf("read singleton record cursor: %w", err)
	}
	candidates, err := s.repository.SingletonRecordCandidates(ctx, cursor, s.cfg.BatchSize)
	if err != nil {
		return 0, pageDone, fmt.Errorf("load singleton record candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, pageDone, nil
	}

	state := pageMore
	if i, held := firstMissingLauncher(candidates); held {
		s.logger.Info("launcher coin not copied yet, holding singleton records",
			zap.Int64("coin_class_id", candidates[i].CoinClassID),
			zap.String("launcher", hex.EncodeToString(candidates[i].LauncherID)),
		)
		candidates = candidates[:i]
		state = pageHeld
		if len(candidates) == 0 {
			return 0, state, nil
		}
	}

	watermark := cursor
	for _, c := range candidates {
		watermark = max(watermark, c.CoinClassID)
	}
	s.logger.Info("analyzing singleton records",
		zap.Int64("from", candidates[0].CoinClassID),
		zap.Int64("to", watermark),
		zap.Int("candidates", len(candidates)),
	)

	records := resolveRecords(candidates)
	analyzed := time.Since(started)

	if err := s.repository.UpsertSingletonRecords(ctx, records, watermark); err != nil {
		return 0, pageDone, fmt.Errorf("upsert singleton records: %w", err)
	}
	s.metrics.ObserveWatermark(string(model.CursorSingletonRecord), watermark)
	s.logger.Info("singleton records processed",
		zap.Duration("analyze", analyzed),
		zap.Duration("persist", time.Since(started)-analyzed),
		zap.Int("records", len(records)),
	)
	return len(records), state, nil
}

// firstMissingLauncher finds the first candidate whose analysis names a
// launcher that has no coin record in the index yet. Candidates are ordered by
// coin class id, so everything before it is safe to resolve.
func firstMissingLauncher(candidates []model.SingletonRecordCandidate) (int, bool) {
	for i, c := range candidates {
		if len(c.LauncherID) == len(model.Bytes32{}) && c.LauncherCoinName == nil {
			return i, true
		}
	}
	return 0, false
}

func (s *SingletonParseService) parseHistories(ctx context.Context) (int, pageState, error) {
	started := time.Now()
	cursor, err := s.repository.ReadCursor(ctx, model.CursorSingletonHistory)
	if err != nil {
		return 0, pageDone, fmt.Errorf("read singleton history cursor: %w", err)
	}
	candidates, err := s.repository.SingletonHistoryCandidates(ctx, cursor, s.cfg.BatchSize)
	if err != nil {
		return 0, pageDone, fmt.Errorf("load singleton history candidates: %w", err)
	}
	if len(candidates) == 0 {
		return 0, pageDone, nil
	}

	watermark := cursor
	for _, c := range candidates {
		watermark = max(watermark, c.CoinClassID)
	}
	s.logger.Info("analyzing singleton history",
		zap.Int64("from", candidates[0].CoinClassID),
		zap.Int64("to", watermark),
		zap.Int("candidates", len(candidates)),
	)

	histories := resolveHistories(candidates)
	analyzed := time.Since(started)

	if err := s.repository.InsertSingletonHistories(ctx, histories, watermark); err != nil {
		return 0, pageDone, fmt.Errorf("insert singleton histories: %w", err)
	}
	s.metrics.ObserveWatermark(string(model.CursorSingletonHistory), watermark)
	s.logger.Info("singleton history processed",
		zap.Duration("analyze", analyzed),
		zap.Duration("persist", time.Since(started)-analyzed),
		zap.Int("histories", len(histories)),
	)
	return len(histories), pageMore, nil
}

func (s *SingletonParseService) ensureCreatorIndex(ctx context.Context) error {
	exists, err := s.repository.SingletonCreatorIndexExists(ctx)
	if err != nil {
		return fmt.Errorf("check singleton creator index: %w", err)
	}
	if exists {
		return nil
	}

	s.logger.Info("first finish initialization, creating singleton creator index")
	if err := s.repository.CreateSingletonCreatorIndex(ctx); err != nil {
		return fmt.Errorf("create singleton creator index: %w", err)
	}
	return nil
}

// resolveRecords keeps, per bootstrap coin and then per launcher, the
// candidate with the highest coin class id. Candidates without a joined
// launcher or without a decoded bootstrap coin are dropped.
func resolveRecords(candidates []model.SingletonRecordCandidate) []model.SingletonRecord {
	byBootstrap := make(map[model.Bytes32]model.SingletonRecord)
	order := make([]model.Bytes32, 0)
	for _, c := range candidates {
		launcher, err := model.Bytes32FromSlice(c.LauncherCoinName)
		if err != nil {
			continue
		}
		bootstrap, err := model.Bytes32FromSlice(c.BootstrapCoinName)
		if err != nil {
			continue
		}

		var mods string
		if c.BootstrapMods != nil {
			mods = *c.BootstrapMods
		}
		record := model.SingletonRecord{
			LastCoinClassID:   c.CoinClassID,
			SingletonCoinName: launcher,
			CreateIndex:       c.CreateIndex,
			BootstrapCoinName: bootstrap,
			CreatorPuzzleHash: c.CreatorPuzzleHash,
			CreatorDID:        hexOrNil(c.CreatorDID),
			Type:              model.ClassifyMods(mods),
		}

		prev, ok := byBootstrap[bootstrap]
		if !ok {
			order = append(order, bootstrap)
		}
		if !ok || record.LastCoinClassID > prev.LastCoinClassID {
			byBootstrap[bootstrap] = record
		}
	}

	bySingleton := make(map[model.Bytes32]int)
	records := make([]model.SingletonRecord, 0, len(order))
	for _, b := range order {
		record := byBootstrap[b]
		if i, ok := bySingleton[record.SingletonCoinName]; ok {
			if record.LastCoinClassID > records[i].LastCoinClassID {
				records[i] = record
			}
			continue
		}
		bySingleton[record.SingletonCoinName] = len(records)
		records = append(records, record)
	}
	return records
}

// resolveHistories keeps the first candidate of every coin class. Candidates
// without a usable launcher id are dropped.
func resolveHistories(candidates []model.SingletonHistoryCandidate) []model.SingletonHistory {
	seen := make(map[int64]struct{}, len(candidates))
	histories := make([]model.SingletonHistory, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.CoinClassID]; ok {
			continue
		}
		seen[c.CoinClassID] = struct{}{}

		launcher, err := model.Bytes32FromSlice(c.LauncherCoinName)
		if err != nil {
			continue
		}
		histories = append(histories, model.SingletonHistory{
			CoinClassID:        c.CoinClassID,
			SingletonCoinName:  launcher,
			ThisCoinName:       c.ThisCoinName,
			ThisCoinSpentIndex: c.ThisCoinSpentIndex,
			NextCoinName:       prefixedHexOrNil(c.NextCoinName),
			P2Owner:            hexOrNil(c.P2Owner),
			DIDOwner:           hexOrNil(c.DIDOwner),
			Type:               model.ClassifyMods(c.Mods),
		})
	}
	return histories
}

// hexOrNil decodes a bare hex string, yielding nil for missing, empty or
// malformed values. A 0x prefix counts as malformed.
func hexOrNil(s *string) []byte {
	if s == nil || *s == "" {
		return nil
	}
	out, err := hex.DecodeString(*s)
	if err != nil {
		return nil
	}
	return out
}

// prefixedHexOrNil decodes a 0x-prefixed hex string, the form the decoder
// uses for coin names.
func prefixedHexOrNil(s *string) []byte {
	if s == nil || !strings.HasPrefix(*s, "0x") {
		return nil
	}
	raw := (*s)[2:]
	return hexOrNil(&raw)
}
