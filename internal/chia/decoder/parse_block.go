package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

type parseBlockRequest struct {
	RefList   []string `json:"ref_list"`
	Generator string   `json:"generator"`
}

type coinJSON struct {
	Parent       string           `json:"parent"`
	Puzzle       string           `json:"puzzle"`
	ParsedPuzzle *model.PuzzleArg `json:"parsed_puzzle"`
	Amount       string           `json:"amount"`
	Solution     string           `json:"solution"`
	CoinName     string           `json:"coin_name"`
	Mods         string           `json:"mods"`
	KeyParam     string           `json:"key_param"`
}

// ParseBlock runs a block generator with its referenced generators and returns the coins it spends.
func (c *Client) ParseBlock(ctx context.Context, generator []byte, refs [][]byte) (coins []model.DecodedCoin, err error) {
	started := time.Now()
	defer func() {
		c.rpcMetrics.Observe("parse_block", err, started)
	}()

	req := parseBlockRequest{
		RefList:   make([]string, 0, len(refs)),
		Generator: model.EncodeHex(generator),
	}
	for _, ref := range refs {
		req.RefList = append(req.RefList, model.EncodeHex(ref))
	}

	body, err := c.do(ctx, http.MethodPost, "parse_block", req)
	if err != nil {
		return nil, err
	}

	var raw []coinJSON
	if err = json.Unmarshal(body, &raw); err != nil {
		err = fmt.Errorf("%w: decode parse_block response: %w", ErrRejected, err)
		return nil, err
	}

	coins = make([]model.DecodedCoin, 0, len(raw))
	for i := range raw {
		coin, convErr := convertCoin(raw[i])
		if convErr != nil {
			err = fmt.Errorf("%w: coin %d: %w", ErrRejected, i, convErr)
			return nil, err
		}
		coins = append(coins, coin)
	}
	return coins, nil
}

func convertCoin(raw coinJSON) (model.DecodedCoin, error) {
	name, err := model.ParseBytes32(raw.CoinName)
	if err != nil {
		return model.DecodedCoin{}, fmt.Errorf("coin name: %w", err)
	}
	parent, err := model.ParseBytes32(raw.Parent)
	if err != nil {
		return model.DecodedCoin{}, fmt.Errorf("parent: %w", err)
	}
	puzzle, err := model.DecodeHex(raw.Puzzle)
	if err != nil {
		return model.DecodedCoin{}, fmt.Errorf("puzzle: %w", err)
	}
	solution, err := model.DecodeHex(raw.Solution)
	if err != nil {
		return model.DecodedCoin{}, fmt.Errorf("solution: %w", err)
	}
	amount, err := ParseAmount(raw.Amount)
	if err != nil {
		return model.DecodedCoin{}, fmt.Errorf("amount: %w", err)
	}

	coin := model.DecodedCoin{
		CoinSpend: model.CoinSpend{
			CoinName: name,
			Puzzle:   puzzle,
			Solution: solution,
			Mods:     raw.Mods,
		},
		Parent:       parent,
		Amount:       amount,
		ParsedPuzzle: raw.ParsedPuzzle,
	}
	if raw.KeyParam != "" && json.Valid([]byte(raw.KeyParam)) {
		coin.Analysis = json.RawMessage(raw.KeyParam)
	}
	return coin, nil
}

// ParseAmount decodes the decoder's amount notation: empty or "()" is zero,
// "0x" prefixes hex, anything else is decimal.
func ParseAmount(amount string) (uint64, error) {
	amount = strings.TrimSpace(amount)
	switch {
	case amount == "" || amount == "()":
		return 0, nil
	case strings.HasPrefix(amount, "0x"):
		return strconv.ParseUint(amount[2:], 16, 64)
	default:
		return strconv.ParseUint(amount, 10, 64)
	}
}
