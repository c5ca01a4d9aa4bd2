package indexer

const (
	StageCoinSync       = "coin_sync"
	StageBlockSync      = "block_sync"
	StageDecode         = "tx_parse"
	StageAnalyze        = "tx_analyze"
	StageSingletonParse = "singleton_parse"

	defaultSyncBatchCount = 100
	maxSpentBatchSize     = 1_000_000
	maxDecodeAttempts     = 3

	// Stages stop pulling new batches after half of the run timeout.
	budgetDivisor = 2
)
