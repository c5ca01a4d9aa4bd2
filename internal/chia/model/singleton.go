package model

import "sort"

// SingletonType classifies a singleton lineage by its contract shape.
type SingletonType string

const (
	SingletonNFTv1   SingletonType = "nft_v1"
	SingletonDIDv1   SingletonType = "did_v1"
	SingletonUnknown SingletonType = "unknown"
)

// Contract fingerprints ("mods") of the singleton shapes the resolver understands.
const (
	ModsNFTv1 = "singleton_top_layer_v1_1(nft_state_layer(nft_ownership_layer(" +
		"nft_ownership_transfer_program_one_way_claim_with_royalties(),p2_delegated_puzzle_or_hidden_puzzle())))"
	ModsNFTv1Settlement = "singleton_top_layer_v1_1(nft_state_layer(nft_ownership_layer(" +
		"nft_ownership_transfer_program_one_way_claim_with_royalties(),settlement_payments())))"
	ModsDIDv1 = "singleton_top_layer_v1_1(did_innerpuz(p2_delegated_puzzle_or_hidden_puzzle()))"

	// SingletonModsPrefix matches every singleton-family fingerprint worth analyzing.
	SingletonModsPrefix = "singleton_top_layer"
)

var singletonTypes = map[string]SingletonType{
	ModsNFTv1:           SingletonNFTv1,
	ModsNFTv1Settlement: SingletonNFTv1,
	ModsDIDv1:           SingletonDIDv1,
}

// ClassifyMods maps a contract fingerprint to its singleton type by exact match.
func ClassifyMods(mods string) SingletonType {
	if t, ok := singletonTypes[mods]; ok {
		return t
	}
	return SingletonUnknown
}

// SingletonMods returns the known singleton fingerprints in a stable order.
func SingletonMods() []string {
	mods := make([]string, 0, len(singletonTypes))
	for m := range singletonTypes {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	return mods
}

// SingletonRecord is the current state of a singleton lineage, keyed by launcher coin.
// Optional fields are nil when unknown.
type SingletonRecord struct {
	LastCoinClassID   int64
	SingletonCoinName Bytes32
	CreateIndex       int64
	BootstrapCoinName Bytes32
	CreatorPuzzleHash []byte
	CreatorDID        []byte
	Type              SingletonType
}

// SingletonHistory is one generation of a singleton lineage, keyed by coin class id.
type SingletonHistory struct {
	CoinClassID        int64
	SingletonCoinName  Bytes32
	ThisCoinName       Bytes32
	ThisCoinSpentIndex int64
	NextCoinName       []byte
	P2Owner            []byte
	DIDOwner           []byte
	Type               SingletonType
}

// SingletonRecordCandidate is a raw current-state row as joined in the index,
// before owner validation and classification. LauncherCoinName is nil when the
// analysis carries no usable launcher id or the launcher coin is not copied yet.
type SingletonRecordCandidate struct {
	CoinClassID       int64
	LauncherID        []byte
	LauncherCoinName  []byte
	CreateIndex       int64
	BootstrapCoinName []byte
	BootstrapMods     *string
	CreatorPuzzleHash []byte
	CreatorDID        *string
}

// SingletonHistoryCandidate is a raw history row as joined in the index.
// ThisCoinSpentIndex is 0 while the coin record has not been copied.
type SingletonHistoryCandidate struct {
	CoinClassID        int64
	LauncherCoinName   []byte
	ThisCoinName       Bytes32
	ThisCoinSpentIndex int64
	NextCoinName       *string
	P2Owner            *string
	DIDOwner           *string
	Mods               string
}
