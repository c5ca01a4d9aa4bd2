package model

import "encoding/json"

// AnalysisUnavailable marks a coin class the decoder could not analyze, so it
// is never selected again.
var AnalysisUnavailable = json.RawMessage(`{ "success": false }`)

// PuzzleArg is a node of a decoded puzzle tree. Absent leaves are omitted when stored.
type PuzzleArg struct {
	Mod  *string     `json:"mod,omitempty"`
	Args []PuzzleArg `json:"args,omitempty"`
	Raw  *string     `json:"raw,omitempty"`
}

// CoinSpend is the raw puzzle and solution of a spent coin.
type CoinSpend struct {
	CoinName Bytes32
	Puzzle   []byte
	Solution []byte
	Mods     string
}

// DecodedCoin is one coin produced by decoding a block generator.
type DecodedCoin struct {
	CoinSpend
	Parent       Bytes32
	Amount       uint64
	ParsedPuzzle *PuzzleArg
	Analysis     json.RawMessage
}

// CoinClass is a decoded coin row. Puzzle and solution are LZ4-compacted.
type CoinClass struct {
	ID             int64
	CoinName       Bytes32
	PackedPuzzle   []byte
	ParsedPuzzle   json.RawMessage
	PackedSolution []byte
	Mods           string
	Analysis       json.RawMessage
}

// AnalysisUpdate is the analysis payload to store for a coin class.
type AnalysisUpdate struct {
	ID       int64
	Analysis json.RawMessage
}
