package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/parlay-settlement/internal/settlement-worker/domain"
	"github.com/radieske/parlay-settlement/internal/settlement-worker/repo"
)

var legCols = []string{"id", "bet_id", "position", "event_id", "league", "home_team", "away_team",
	"market", "outcome", "price", "point", "bookmaker", "commence_time", "status"}

var wagerCols = []string{"id", "house_id", "ticket_number", "bet_type", "stake", "combined_odds",
	"potential_payout", "status", "actual_payout", "placed_at", "settled_at"}

func TestListPendingLegs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 10, 12, 18, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM bet_selections s\s+JOIN bets b ON b.id = s.bet_id`).
		WillReturnRows(sqlmock.NewRows(legCols).
			AddRow("l1", "w1", 0, "evt-1", "NFL", "Chiefs", "Bills", "spreads", "Chiefs", "1.91", -3.5, "draftkings", start, "pending").
			AddRow("l2", "w1", 1, "evt-2", "NBA", "Celtics", "Heat", "h2h", "Heat", "2.10", nil, nil, nil, "pending"))

	legs, err := repo.NewPostgres(db).ListPendingLegs(context.Background())
	require.NoError(t, err)
	require.Len(t, legs, 2)

	assert.Equal(t, "l1", legs[0].ID)
	require.NotNil(t, legs[0].Point)
	assert.Equal(t, -3.5, *legs[0].Point)
	require.NotNil(t, legs[0].CommenceTime)
	assert.True(t, start.Equal(*legs[0].CommenceTime))
	assert.Equal(t, "1.91", legs[0].Price.String())

	assert.Nil(t, legs[1].Point)
	assert.Nil(t, legs[1].Bookmaker)
	assert.Nil(t, legs[1].CommenceTime)
	assert.Equal(t, domain.StatusPending, legs[1].Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWager(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	placed := time.Date(2026, 10, 12, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM bets WHERE id = \$1`).WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(wagerCols).
			AddRow("w1", "h1", "T-0001", "parlay", "10.00", "3.6100", nil, "pending", "0", placed, nil))
	mock.ExpectQuery(`WHERE s.bet_id = \$1`).WithArgs("w1").
		WillReturnRows(sqlmock.NewRows(legCols).
			AddRow("l1", "w1", 0, "evt-1", "NFL", "Chiefs", "Bills", "h2h", "Chiefs", "1.90", nil, nil, placed, "won").
			AddRow("l2", "w1", 1, "evt-2", "NFL", "Rams", "49ers", "h2h", "Rams", "1.90", nil, nil, placed, "pending"))

	w, err := repo.NewPostgres(db).GetWager(context.Background(), "w1")
	require.NoError(t, err)

	assert.Equal(t, domain.WagerParlay, w.Type)
	assert.True(t, w.Stake.Equal(decimal.NewFromInt(10)))
	assert.False(t, w.PotentialPayout.Valid)
	assert.Nil(t, w.SettledAt)
	require.Len(t, w.Legs, 2)
	assert.Equal(t, domain.StatusWon, w.Legs[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWager_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM bets WHERE id = \$1`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(wagerCols))

	_, err = repo.NewPostgres(db).GetWager(context.Background(), "missing")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestSettleWager(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE bets SET status=\$1, actual_payout=\$2, settled_at=\$3`).
		WithArgs("won", "171.48", sqlmock.AnyArg(), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bets SET status=\$1, actual_payout=\$2, settled_at=\$3`).
		WithArgs("won", "171.48", sqlmock.AnyArg(), "w1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := repo.NewPostgres(db)
	payout := decimal.RequireFromString("171.475")

	changed, err := r.SettleWager(context.Background(), "w1", domain.StatusWon, payout, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	// segunda vez a aposta já não está pending
	changed, err = r.SettleWager(context.Background(), "w1", domain.StatusWon, payout, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLegStatus_OnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE bet_selections SET status=\$1, updated_at=NOW\(\) WHERE id=\$2 AND status='pending'`).
		WithArgs("lost", "l1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.NewPostgres(db).UpdateLegStatus(context.Background(), "l1", domain.StatusLost)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListOverdueWagerIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cutoff := time.Date(2026, 10, 13, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id FROM bets`).WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("w1").AddRow("w2"))

	ids, err := repo.NewPostgres(db).ListOverdueWagerIDs(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, []string{"w1", "w2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOverride(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("l1", "w1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "status"}).AddRow("pending", "pending"))
	mock.ExpectExec(`UPDATE bet_selections SET status=\$1`).WithArgs("lost", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bets SET status=\$1`).WithArgs("lost", "0.00", sqlmock.AnyArg(), "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO settlement_audit`).
		WithArgs(sqlmock.AnyArg(), "l1", "w1", "ops@house", "score correction", "pending", "lost", "pending", "lost", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := repo.NewPostgres(db).ApplyOverride(context.Background(), repo.Override{
		LegID:           "l1",
		WagerID:         "w1",
		Actor:           "ops@house",
		Note:            "score correction",
		LegStatusBefore: domain.StatusPending,
		LegStatusAfter:  domain.StatusLost,
		WagerBefore:     domain.StatusPending,
		WagerAfter:      domain.StatusLost,
		Payout:          decimal.Zero,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, domain.StatusLost, entry.WagerAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOverride_Conflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs("l1", "w1").
		WillReturnRows(sqlmock.NewRows([]string{"status", "status"}).AddRow("won", "pending"))
	mock.ExpectRollback()

	_, err = repo.NewPostgres(db).ApplyOverride(context.Background(), repo.Override{
		LegID:           "l1",
		WagerID:         "w1",
		LegStatusBefore: domain.StatusPending,
		LegStatusAfter:  domain.StatusLost,
		WagerBefore:     domain.StatusPending,
		WagerAfter:      domain.StatusLost,
	})
	assert.True(t, errors.Is(err, repo.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWagerIDForLeg(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT bet_id FROM bet_selections WHERE id=\$1`).WithArgs("l1").
		WillReturnRows(sqlmock.NewRows([]string{"bet_id"}).AddRow("w1"))
	mock.ExpectQuery(`SELECT bet_id FROM bet_selections WHERE id=\$1`).WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"bet_id"}))

	p := repo.NewPostgres(db)
	id, err := p.WagerIDForLeg(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, "w1", id)

	_, err = p.WagerIDForLeg(context.Background(), "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
