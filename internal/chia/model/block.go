package model

import "encoding/json"

// ChainState is the subset of the node's blockchain state used for ingestion.
type ChainState struct {
	PeakHeight uint32
}

// FullBlock is a block as returned by the full node, with raw generator bytecode.
// Metadata holds the node's block JSON without the generator fields.
type FullBlock struct {
	Index            uint32
	IsTxBlock        bool
	Weight           int64
	Iterations       int64
	Cost             int64
	Fee              int64
	Generator        []byte
	GeneratorRefList []uint32
	Metadata         json.RawMessage
}

// BlockRecord is a block row in the index. PackedGenerator is the LZ4-compacted generator.
type BlockRecord struct {
	Index            uint32
	IsTxBlock        bool
	Weight           int64
	Iterations       int64
	Cost             int64
	Fee              int64
	PackedGenerator  []byte
	GeneratorRefList []uint32
	Metadata         json.RawMessage
}

// BlockGenerator is the stored generator of a block together with the heights it references.
type BlockGenerator struct {
	Index            uint32
	PackedGenerator  []byte
	GeneratorRefList []uint32
}
