package postgres

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

type singletonFixture struct {
	launcher    model.Bytes32
	creator     model.Bytes32
	creatorHash model.Bytes32
	eve         model.Bytes32
	second      model.Bytes32
}

func (s *RepositorySuite) seedSingleton() singletonFixture {
	f := singletonFixture{
		launcher:    testName(100),
		creator:     testName(200),
		creatorHash: testName(300),
		eve:         testName(101),
		second:      testName(102),
	}

	s.Require().NoError(s.repo.InsertCoinRecords(s.testCtx, []model.CoinRecord{
		{ID: 1, CoinName: f.creator, PuzzleHash: f.creatorHash, CoinParent: testName(1), ConfirmedIndex: 400, SpentIndex: 500},
		{ID: 2, CoinName: f.launcher, PuzzleHash: testName(2), CoinParent: f.creator, ConfirmedIndex: 500, SpentIndex: 500},
		{ID: 3, CoinName: f.eve, PuzzleHash: testName(3), CoinParent: f.launcher, ConfirmedIndex: 500, SpentIndex: 0},
	}))

	did := strings.Repeat("ab", 32)
	classes := []model.CoinClass{
		{
			CoinName: f.eve, PackedPuzzle: []byte{1}, PackedSolution: []byte{2}, Mods: model.ModsNFTv1,
			Analysis: json.RawMessage(fmt.Sprintf(`{"launcherId":%q,"didOwner":%q,"nextCoinName":%q}`,
				f.launcher.Hex(), did, f.second.Hex())),
		},
		{
			CoinName: f.second, PackedPuzzle: []byte{1}, PackedSolution: []byte{2}, Mods: model.ModsNFTv1,
			Analysis: json.RawMessage(fmt.Sprintf(`{"launcherId":%q,"p2Owner":"zz"}`, f.launcher.Hex())),
		},
		{
			CoinName: testName(103), PackedPuzzle: []byte{1}, PackedSolution: []byte{2}, Mods: model.ModsDIDv1,
			Analysis: json.RawMessage(`{"launcherId":"0x12"}`),
		},
		{
			CoinName: testName(104), PackedPuzzle: []byte{1}, PackedSolution: []byte{2}, Mods: "p2_delegated_puzzle_or_hidden_puzzle()",
			Analysis: json.RawMessage(fmt.Sprintf(`{"launcherId":%q}`, f.launcher.Hex())),
		},
	}
	s.Require().NoError(s.repo.InsertCoinClasses(s.testCtx, classes))
	return f
}

func (s *RepositorySuite) TestSingletonRecordCandidates() {
	f := s.seedSingleton()

	candidates, err := s.repo.SingletonRecordCandidates(s.testCtx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(candidates, 3, "non-singleton mods are not candidates")

	for _, c := range candidates[:2] {
		s.Equal(f.launcher.Bytes(), c.LauncherID)
		s.Equal(f.launcher.Bytes(), c.LauncherCoinName)
		s.Equal(int64(500), c.CreateIndex)
		s.Equal(f.eve.Bytes(), c.BootstrapCoinName)
		s.Require().NotNil(c.BootstrapMods)
		s.Equal(model.ModsNFTv1, *c.BootstrapMods)
		s.Equal(f.creatorHash.Bytes(), c.CreatorPuzzleHash)
		s.Require().NotNil(c.CreatorDID)
		s.Equal(strings.Repeat("ab", 32), *c.CreatorDID)
	}

	bad := candidates[2]
	s.Nil(bad.LauncherID, "malformed launcher ids are not decoded")
	s.Nil(bad.LauncherCoinName, "malformed launcher ids never join")
	s.Nil(bad.BootstrapCoinName)

	next, err := s.repo.SingletonRecordCandidates(s.testCtx, bad.CoinClassID, 10)
	s.Require().NoError(err)
	s.Empty(next)
}

func (s *RepositorySuite) TestSingletonRecordCandidatesBeforeLauncherCopy() {
	launcher := testName(150)
	s.Require().NoError(s.repo.InsertCoinClasses(s.testCtx, []model.CoinClass{
		{
			CoinName: testName(151), PackedPuzzle: []byte{1}, PackedSolution: []byte{2}, Mods: model.ModsDIDv1,
			Analysis: json.RawMessage(fmt.Sprintf(`{"launcherId":%q}`, launcher.Hex())),
		},
	}))

	candidates, err := s.repo.SingletonRecordCandidates(s.testCtx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(candidates, 1)
	s.Equal(launcher.Bytes(), candidates[0].LauncherID)
	s.Nil(candidates[0].LauncherCoinName)
	s.Nil(candidates[0].BootstrapCoinName)
}

func (s *RepositorySuite) TestUpsertSingletonRecordsNeverLowersLastID() {
	f := s.seedSingleton()
	record := model.SingletonRecord{
		LastCoinClassID:   2,
		SingletonCoinName: f.launcher,
		CreateIndex:       500,
		BootstrapCoinName: f.eve,
		CreatorPuzzleHash: f.creatorHash.Bytes(),
		Type:              model.SingletonNFTv1,
	}
	s.Require().NoError(s.repo.UpsertSingletonRecords(s.testCtx, []model.SingletonRecord{record}, 2))

	record.LastCoinClassID = 1
	s.Require().NoError(s.repo.UpsertSingletonRecords(s.testCtx, []model.SingletonRecord{record}, 1))

	var lastID int64
	s.Require().NoError(s.repo.conn.QueryRow(s.testCtx,
		`SELECT last_coin_class_id FROM sync_singleton_record WHERE singleton_coin_name = $1`, f.launcher.Bytes()).Scan(&lastID))
	s.Equal(int64(2), lastID)
	s.Equal(int64(1), s.countRows("sync_singleton_record"))

	cursor, err := s.repo.ReadCursor(s.testCtx, model.CursorSingletonRecord)
	s.Require().NoError(err)
	s.Equal(int64(2), cursor)

	exists, err := s.repo.SingletonCreatorIndexExists(s.testCtx)
	s.Require().NoError(err)
	s.False(exists)
	s.Require().NoError(s.repo.CreateSingletonCreatorIndex(s.testCtx))
	exists, err = s.repo.SingletonCreatorIndexExists(s.testCtx)
	s.Require().NoError(err)
	s.True(exists)
}

func (s *RepositorySuite) TestSingletonHistoryIsAppendOnly() {
	f := s.seedSingleton()

	candidates, err := s.repo.SingletonHistoryCandidates(s.testCtx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(candidates, 3)

	eve := candidates[0]
	s.Equal(f.launcher.Bytes(), eve.LauncherCoinName)
	s.Equal(f.eve, eve.ThisCoinName)
	s.Zero(eve.ThisCoinSpentIndex)
	s.Require().NotNil(eve.NextCoinName)
	s.Equal(f.second.Hex(), *eve.NextCoinName)
	s.Nil(candidates[2].LauncherCoinName)

	second := candidates[1]
	s.Zero(second.ThisCoinSpentIndex, "coin record not copied yet")
	s.Require().NotNil(second.P2Owner)
	s.Equal("zz", *second.P2Owner)

	history := []model.SingletonHistory{
		{CoinClassID: eve.CoinClassID, SingletonCoinName: f.launcher, ThisCoinName: f.eve, NextCoinName: f.second.Bytes(), Type: model.SingletonNFTv1},
		{CoinClassID: second.CoinClassID, SingletonCoinName: f.launcher, ThisCoinName: f.second, Type: model.SingletonNFTv1},
	}
	s.Require().NoError(s.repo.InsertSingletonHistories(s.testCtx, history, second.CoinClassID))

	history[0].P2Owner = []byte{0x01}
	s.Require().NoError(s.repo.InsertSingletonHistories(s.testCtx, history[:1], eve.CoinClassID))
	s.Equal(int64(2), s.countRows("sync_singleton_history"))

	var owner []byte
	s.Require().NoError(s.repo.conn.QueryRow(s.testCtx,
		`SELECT p2_owner FROM sync_singleton_history WHERE coin_class_id = $1`, eve.CoinClassID).Scan(&owner))
	s.Nil(owner, "existing history rows are never rewritten")

	cursor, err := s.repo.ReadCursor(s.testCtx, model.CursorSingletonHistory)
	s.Require().NoError(err)
	s.Equal(second.CoinClassID, cursor)

	_, err = s.repo.UpdateSpentIndexes(s.testCtx, []model.SpentChange{{CoinName: f.eve, SpentIndex: 600}}, 600)
	s.Require().NoError(err)
	updated, err := s.repo.BackfillSingletonSpentIndex(s.testCtx)
	s.Require().NoError(err)
	s.Equal(int64(1), updated)

	var spent int64
	s.Require().NoError(s.repo.conn.QueryRow(s.testCtx,
		`SELECT this_coin_spent_index FROM sync_singleton_history WHERE coin_class_id = $1`, eve.CoinClassID).Scan(&spent))
	s.Equal(int64(600), spent)
}
