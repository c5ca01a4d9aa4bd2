package fullnode

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
	"github.com/goodnatureofminers/chiaindexer-backend/pkg/safe"
)

// generator fields are stored in their own columns, not in the metadata blob.
var generatorFields = []string{"transactions_generator", "transactions_generator_ref_list"}

type rpcBlock struct {
	RewardChainBlock struct {
		Height             uint32      `json:"height"`
		Weight             json.Number `json:"weight"`
		TotalIters         json.Number `json:"total_iters"`
		IsTransactionBlock bool        `json:"is_transaction_block"`
	} `json:"reward_chain_block"`
	TransactionsInfo *struct {
		Cost json.Number `json:"cost"`
		Fees json.Number `json:"fees"`
	} `json:"transactions_info"`
	TransactionsGenerator        *string  `json:"transactions_generator"`
	TransactionsGeneratorRefList []uint32 `json:"transactions_generator_ref_list"`
}

func convertBlock(raw json.RawMessage) (model.FullBlock, error) {
	var b rpcBlock
	if err := json.Unmarshal(raw, &b); err != nil {
		return model.FullBlock{}, fmt.Errorf("decode block: %w", err)
	}

	out := model.FullBlock{
		Index:            b.RewardChainBlock.Height,
		IsTxBlock:        b.RewardChainBlock.IsTransactionBlock,
		GeneratorRefList: b.TransactionsGeneratorRefList,
	}

	var err error
	if out.Weight, err = toInt64(b.RewardChainBlock.Weight); err != nil {
		return model.FullBlock{}, fmt.Errorf("block %d weight: %w", out.Index, err)
	}
	if out.Iterations, err = toInt64(b.RewardChainBlock.TotalIters); err != nil {
		return model.FullBlock{}, fmt.Errorf("block %d total iters: %w", out.Index, err)
	}
	if b.TransactionsInfo != nil {
		if out.Cost, err = toInt64(b.TransactionsInfo.Cost); err != nil {
			return model.FullBlock{}, fmt.Errorf("block %d cost: %w", out.Index, err)
		}
		if out.Fee, err = toInt64(b.TransactionsInfo.Fees); err != nil {
			return model.FullBlock{}, fmt.Errorf("block %d fees: %w", out.Index, err)
		}
	}
	if b.TransactionsGenerator != nil && *b.TransactionsGenerator != "" {
		if out.Generator, err = model.DecodeHex(*b.TransactionsGenerator); err != nil {
			return model.FullBlock{}, fmt.Errorf("block %d generator: %w", out.Index, err)
		}
	}
	if out.Metadata, err = stripGenerator(raw); err != nil {
		return model.FullBlock{}, fmt.Errorf("block %d metadata: %w", out.Index, err)
	}

	return out, nil
}

func stripGenerator(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, f := range generatorFields {
		delete(fields, f)
	}
	return json.Marshal(fields)
}

func toInt64(n json.Number) (int64, error) {
	if n == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(string(n), 10, 64)
	if err != nil {
		return 0, err
	}
	return safe.Int64(v)
}
