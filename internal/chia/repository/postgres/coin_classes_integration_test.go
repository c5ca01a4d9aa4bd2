package postgres

import (
	"encoding/json"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

func newCoinClass(seed uint64, mods string) model.CoinClass {
	return model.CoinClass{
		CoinName:       testName(seed),
		PackedPuzzle:   []byte{0x01, byte(seed)},
		ParsedPuzzle:   json.RawMessage(`{"mod":"x"}`),
		PackedSolution: []byte{0x02, byte(seed)},
		Mods:           mods,
	}
}

func (s *RepositorySuite) TestCoinClassForkRepair() {
	first := []model.CoinClass{newCoinClass(1, "p2()"), newCoinClass(2, "p2()")}
	s.Require().NoError(s.repo.InsertCoinClasses(s.testCtx, first))

	replay := []model.CoinClass{newCoinClass(2, "cat_v2()"), newCoinClass(3, "p2()")}
	err := s.repo.InsertCoinClasses(s.testCtx, replay)
	s.Require().ErrorIs(err, model.ErrDuplicateCoinClass)
	s.Equal(int64(2), s.countRows("sync_coin_class"), "a failed copy inserts nothing")

	deleted, err := s.repo.DeleteCoinClasses(s.testCtx, []model.Bytes32{replay[0].CoinName, replay[1].CoinName})
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	s.Require().NoError(s.repo.InsertCoinClasses(s.testCtx, replay))
	s.Equal(int64(3), s.countRows("sync_coin_class"))

	var mods string
	s.Require().NoError(s.repo.conn.QueryRow(s.testCtx,
		`SELECT mods FROM sync_coin_class WHERE coin_name = $1`, testName(2).Bytes()).Scan(&mods))
	s.Equal("cat_v2()", mods)
}

func (s *RepositorySuite) TestAnalysisFlow() {
	classes := []model.CoinClass{
		newCoinClass(1, model.ModsNFTv1),
		newCoinClass(2, "p2_delegated_puzzle_or_hidden_puzzle()"),
		newCoinClass(3, model.ModsDIDv1),
		newCoinClass(4, model.ModsNFTv1),
	}
	classes[3].Analysis = json.RawMessage(`{"launcherId":"0x00"}`)
	s.Require().NoError(s.repo.InsertCoinClasses(s.testCtx, classes))

	pending, err := s.repo.UnanalyzedCoinClasses(s.testCtx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(testName(1), pending[0].CoinName)
	s.Equal(testName(3), pending[1].CoinName)
	s.Equal([]byte{0x01, 1}, pending[0].PackedPuzzle)

	s.Require().NoError(s.repo.UpdateCoinClassAnalysis(s.testCtx, []model.AnalysisUpdate{
		{ID: pending[0].ID, Analysis: json.RawMessage(`{"p2Owner":"ab"}`)},
	}, pending[0].ID))

	pending, err = s.repo.UnanalyzedCoinClasses(s.testCtx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(testName(3), pending[0].CoinName)

	cursor, err := s.repo.ReadCursor(s.testCtx, model.CursorAnalysis)
	s.Require().NoError(err)
	s.Positive(cursor)

	after, err := s.repo.UnanalyzedCoinClasses(s.testCtx, pending[0].ID, 10)
	s.Require().NoError(err)
	s.Empty(after)
}
