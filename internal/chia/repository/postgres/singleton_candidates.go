package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

// Launcher ids are only decoded when they are 0x followed by 64 hex digits;
// anything else yields a NULL launcher and never joins.
const (
	singletonRecordCandidatesQuery = `
WITH cc AS (
	SELECT
		id,
		CASE WHEN analysis->>'launcherId' ~ '^0x[0-9a-fA-F]{64}$'
			THEN decode(substring(analysis->>'launcherId' from 3), 'hex')
		END AS launcher
	FROM sync_coin_class
	WHERE mods = ANY($3)
		AND analysis IS NOT NULL
		AND id > $1
	ORDER BY id
	LIMIT $2
)
SELECT
	cc.id,
	cc.launcher,
	c.coin_name,
	COALESCE(c.spent_index, 0),
	ccb.coin_name,
	ccb.mods,
	cp.puzzle_hash,
	ccb.analysis->>'didOwner'
FROM cc
LEFT JOIN sync_coin_record c ON c.coin_name = cc.launcher
LEFT JOIN sync_coin_record cp ON cp.coin_name = c.coin_parent
LEFT JOIN sync_coin_record cb ON cb.coin_parent = c.coin_name
LEFT JOIN sync_coin_class ccb ON ccb.coin_name = cb.coin_name
ORDER BY cc.id`

	singletonHistoryCandidatesQuery = `
WITH cc AS (
	SELECT id, coin_name, mods, analysis
	FROM sync_coin_class
	WHERE mods = ANY($3)
		AND analysis IS NOT NULL
		AND id > $1
	ORDER BY id
	LIMIT $2
)
SELECT
	cc.id,
	CASE WHEN cc.analysis->>'launcherId' ~ '^0x[0-9a-fA-F]{64}$'
		THEN decode(substring(cc.analysis->>'launcherId' from 3), 'hex')
	END,
	cc.coin_name,
	COALESCE(c.spent_index, 0),
	cc.analysis->>'nextCoinName',
	cc.analysis->>'p2Owner',
	cc.analysis->>'didOwner',
	cc.mods
FROM cc
LEFT JOIN sync_coin_record c ON c.coin_name = cc.coin_name
ORDER BY cc.id`
)

// SingletonRecordCandidates joins up to limit singleton coin classes after id
// with their launcher, the launcher's parent and the bootstrap (eve) coin.
// LauncherID is the decoded launcher id of the analysis; LauncherCoinName is
// only set once the launcher coin record has been copied.
// Every scanned coin class yields at least one row, so the highest CoinClassID
// returned is how far the page reached.
func (r *Repository) SingletonRecordCandidates(ctx context.Context, after int64, limit int) ([]model.SingletonRecordCandidate, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("singleton_record_candidates", err, start)
	}()

	rows, err := r.conn.Query(ctx, singletonRecordCandidatesQuery, after, limit, model.SingletonMods())
	if err != nil {
		return nil, fmt.Errorf("query singleton record candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.SingletonRecordCandidate
	for rows.Next() {
		var c model.SingletonRecordCandidate
		if err = rows.Scan(
			&c.CoinClassID,
			&c.LauncherID,
			&c.LauncherCoinName,
			&c.CreateIndex,
			&c.BootstrapCoinName,
			&c.BootstrapMods,
			&c.CreatorPuzzleHash,
			&c.CreatorDID,
		); err != nil {
			return nil, fmt.Errorf("scan singleton record candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate singleton record candidates: %w", err)
	}
	return candidates, nil
}

// SingletonHistoryCandidates returns one row per singleton coin class after id,
// up to limit, with the owner fields of its analysis.
func (r *Repository) SingletonHistoryCandidates(ctx context.Context, after int64, limit int) ([]model.SingletonHistoryCandidate, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("singleton_history_candidates", err, start)
	}()

	rows, err := r.conn.Query(ctx, singletonHistoryCandidatesQuery, after, limit, model.SingletonMods())
	if err != nil {
		return nil, fmt.Errorf("query singleton history candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.SingletonHistoryCandidate
	for rows.Next() {
		var (
			c        model.SingletonHistoryCandidate
			thisCoin []byte
		)
		if err = rows.Scan(
			&c.CoinClassID,
			&c.LauncherCoinName,
			&thisCoin,
			&c.ThisCoinSpentIndex,
			&c.NextCoinName,
			&c.P2Owner,
			&c.DIDOwner,
			&c.Mods,
		); err != nil {
			return nil, fmt.Errorf("scan singleton history candidate: %w", err)
		}
		if c.ThisCoinName, err = model.Bytes32FromSlice(thisCoin); err != nil {
			return nil, fmt.Errorf("coin class %d name: %w", c.CoinClassID, err)
		}
		candidates = append(candidates, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate singleton history candidates: %w", err)
	}
	return candidates, nil
}
