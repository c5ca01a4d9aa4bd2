package indexer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=$GOPACKAGE

type (
	MirrorSource interface {
		CountCoinRows(ctx context.Context) (int64, error)
		CountHintRows(ctx context.Context) (int64, error)
		PeakSpentHeight(ctx context.Context) (int64, error)
		ReadCoinRows(ctx context.Context, offset int64, limit int) ([]model.CoinRecord, error)
		ReadHintRows(ctx context.Context, offset int64, limit int) ([]model.HintRecord, error)
		ReadSpentChanges(ctx context.Context, minHeight int64, limit int) ([]model.SpentChange, error)
	}
	FullNode interface {
		GetChainState(ctx context.Context) (model.ChainState, error)
		GetBlocks(ctx context.Context, start, count uint32) ([]model.FullBlock, error)
	}
	Decoder interface {
		ParseBlock(ctx context.Context, generator []byte, refs [][]byte) ([]model.DecodedCoin, error)
		AnalyzeTx(ctx context.Context, spend model.CoinSpend) (json.RawMessage, error)
	}

	CoinRepository interface {
		ReadCursor(ctx context.Context, cursor model.Cursor) (int64, error)
		WriteCursor(ctx context.Context, cursor model.Cursor, value int64) error
		MaxCoinRecordID(ctx context.Context) (int64, error)
		MaxHintRecordID(ctx context.Context) (int64, error)
		InsertCoinRecords(ctx context.Context, records []model.CoinRecord) error
		InsertHintRecords(ctx context.Context, records []model.HintRecord) error
		EnsureCoinIndexes(ctx context.Context) error
		UpdateSpentIndexes(ctx context.Context, changes []model.SpentChange, watermark int64) (int64, error)
	}
	BlockRepository interface {
		ReadCursor(ctx context.Context, cursor model.Cursor) (int64, error)
		InsertBlocks(ctx context.Context, blocks []model.BlockRecord, watermark int64) error
	}
	DecodeRepository interface {
		UnparsedBlocks(ctx context.Context, limit int, skip []uint32) ([]model.BlockGenerator, error)
		BlockGenerators(ctx context.Context, heights []uint32) ([]model.BlockGenerator, error)
		InsertCoinClasses(ctx context.Context, classes []model.CoinClass) error
		DeleteCoinClasses(ctx context.Context, names []model.Bytes32) (int64, error)
		MarkBlocksParsed(ctx context.Context, heights []uint32) error
	}
	AnalyzeRepository interface {
		ReadCursor(ctx context.Context, cursor model.Cursor) (int64, error)
		UnanalyzedCoinClasses(ctx context.Context, after int64, limit int) ([]model.CoinClass, error)
		UpdateCoinClassAnalysis(ctx context.Context, updates []model.AnalysisUpdate, watermark int64) error
	}
	SingletonRepository interface {
		ReadCursor(ctx context.Context, cursor model.Cursor) (int64, error)
		BackfillSingletonSpentIndex(ctx context.Context) (int64, error)
		SingletonRecordCandidates(ctx context.Context, after int64, limit int) ([]model.SingletonRecordCandidate, error)
		UpsertSingletonRecords(ctx context.Context, records []model.SingletonRecord, watermark int64) error
		SingletonHistoryCandidates(ctx context.Context, after int64, limit int) ([]model.SingletonHistoryCandidate, error)
		InsertSingletonHistories(ctx context.Context, histories []model.SingletonHistory, watermark int64) error
		SingletonCreatorIndexExists(ctx context.Context) (bool, error)
		CreateSingletonCreatorIndex(ctx context.Context) error
	}

	StageMetrics interface {
		ObserveBatch(err error, items int, started time.Time)
		ObserveItemFailures(count int)
		ObserveWatermark(cursor string, value int64)
	}
)
