// Package model defines domain models for chia ledger indexing.
package model

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Bytes32 is a fixed-size ledger hash: coin names, puzzle hashes, launcher ids.
type Bytes32 [32]byte

// Hex returns the 0x-prefixed hex form used by the node and the decoder.
func (b Bytes32) Hex() string {
	return "0x" + hex.EncodeToString(b[:])
}

// Bytes returns a copy of b as a slice.
func (b Bytes32) Bytes() []byte {
	out := make([]byte, len(b))
	copy(out, b[:])
	return out
}

// Bytes32FromSlice copies a 32-byte slice into a Bytes32.
func Bytes32FromSlice(raw []byte) (Bytes32, error) {
	var b Bytes32
	if len(raw) != len(b) {
		return b, fmt.Errorf("expected %d bytes, got %d", len(b), len(raw))
	}
	copy(b[:], raw)
	return b, nil
}

// ParseBytes32 decodes a hex string with an optional 0x prefix.
func ParseBytes32(s string) (Bytes32, error) {
	raw, err := DecodeHex(s)
	if err != nil {
		return Bytes32{}, err
	}
	return Bytes32FromSlice(raw)
}

// DecodeHex decodes a hex string with an optional 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode hex %q: %w", s, err)
	}
	return raw, nil
}

// EncodeHex encodes raw bytes with a 0x prefix.
func EncodeHex(raw []byte) string {
	return "0x" + hex.EncodeToString(raw)
}

// CoinRecord is a coin row copied from the mirror database. ID is the mirror rowid
// and doubles as the insertion watermark.
type CoinRecord struct {
	ID             int64
	CoinName       Bytes32
	ConfirmedIndex int64
	SpentIndex     int64
	Coinbase       bool
	PuzzleHash     Bytes32
	CoinParent     Bytes32
	Amount         uint64
	Timestamp      int64
}

// HintRecord maps an application-chosen hint to a coin.
type HintRecord struct {
	ID       int64
	CoinName Bytes32
	Hint     []byte
}

// SpentChange is a spend height observed in the mirror for a coin.
type SpentChange struct {
	CoinName   Bytes32
	SpentIndex int64
}
