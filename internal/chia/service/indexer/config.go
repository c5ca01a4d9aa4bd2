package indexer

import (
	"fmt"
	"time"
)

// StageConfig sizes one stage run. A BatchSize of zero turns the stage into a no-op.
type StageConfig struct {
	BatchSize int
	Timeout   time.Duration
}

// CoinSyncConfig sizes the mirror copy. BatchSize drives row insertion and
// SpentBatchSize the spend backfill; each is skipped when zero.
type CoinSyncConfig struct {
	BatchSize      int
	BatchCount     int
	SpentBatchSize int
	Timeout        time.Duration
}

func (c StageConfig) validate() error {
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative, got %d", c.BatchSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func (c CoinSyncConfig) validate() error {
	if c.BatchSize < 0 || c.SpentBatchSize < 0 || c.BatchCount < 0 {
		return fmt.Errorf("coin sync sizes must not be negative: batch %d, count %d, spent %d",
			c.BatchSize, c.BatchCount, c.SpentBatchSize)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

func (c StageConfig) budget() time.Duration {
	return c.Timeout / budgetDivisor
}
