package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

type analyzeTxRequest struct {
	CoinName string `json:"coin_name"`
	Puzzle   string `json:"puzzle"`
	Solution string `json:"solution"`
}

type analyzeTxResponse struct {
	CoinName string          `json:"coin_name"`
	Analysis json.RawMessage `json:"analysis"`
}

// AnalyzeTx asks the decoder to interpret a coin spend. An empty result means the
// decoder produced no analysis for it.
func (c *Client) AnalyzeTx(ctx context.Context, spend model.CoinSpend) (analysis json.RawMessage, err error) {
	started := time.Now()
	defer func() {
		c.rpcMetrics.Observe("analyze_tx", err, started)
	}()

	req := analyzeTxRequest{
		CoinName: spend.CoinName.Hex(),
		Puzzle:   model.EncodeHex(spend.Puzzle),
		Solution: model.EncodeHex(spend.Solution),
	}
	body, err := c.do(ctx, http.MethodPost, "analyze_tx", req)
	if err != nil {
		return nil, err
	}

	var resp *analyzeTxResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		err = fmt.Errorf("%w: decode analyze_tx response: %w", ErrRejected, err)
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return unwrapAnalysis(resp.Analysis), nil
}

// unwrapAnalysis accepts the analysis either inline or as a JSON-encoded string.
func unwrapAnalysis(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return raw
	}
	if s == "" || !json.Valid([]byte(s)) {
		return nil
	}
	return json.RawMessage(s)
}
