package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/money"
)

const alice = ledger.Address("0x00000000000000000000000000000000000000a1")

var ts = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestLedgerStoreCommit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	treasury := money.Cents(1198)
	cs := ledger.ChangeSet{
		Op: "create_reservation",
		Reservations: []ledger.Reservation{{
			ID: 1, User: alice, LocationID: 1, SpotID: "A1",
			Start: ts, End: ts.Add(2 * time.Hour), TotalCost: 1198,
			Status: ledger.StatusActive, PaymentMethod: "crypto", CreatedAt: ts, UpdatedAt: ts,
		}},
		Balances: map[ledger.Address]money.Cents{alice: 8802},
		Treasury: &treasury,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).
		WithArgs(int64(1), string(alice), int64(1), "A1", ts, ts.Add(2*time.Hour), int64(1198), int64(0), "ACTIVE", "crypto", ts, ts).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO wallets")).
		WithArgs(string(alice), int64(8802)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO treasury")).
		WithArgs(int64(1198)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewLedgerStore(db).Commit(context.Background(), cs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStoreCommitRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	cs := ledger.ChangeSet{
		Op:           "remove_spot",
		Locations:    []ledger.Location{{ID: 1, Name: "Downtown", Address: "123 Main St", BaseRate: 599, Active: true, TotalSpots: 0, CreatedAt: ts}},
		RemovedSpots: []ledger.SpotKey{{LocationID: 1, SpotID: "A1"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO locations")).
		WithArgs(int64(1), "Downtown", "123 Main St", int64(599), true, int64(0), int64(0), ts).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(deleteSpot)).
		WithArgs(int64(1), "A1").
		WillReturnError(errors.New("lock wait timeout"))
	mock.ExpectRollback()

	err = NewLedgerStore(db).Commit(context.Background(), cs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete spot 1/A1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStoreLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM locations ORDER BY id").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name", "address", "base_rate_cents", "is_active", "total_spots", "available_spots", "created_at"}).
			AddRow(1, "Downtown", "123 Main St", 599, true, 1, 1, ts))
	mock.ExpectQuery("FROM spots ORDER BY seq").WillReturnRows(
		sqlmock.NewRows([]string{"location_id", "spot_id", "spot_type", "rate_cents", "is_available"}).
			AddRow(1, "A1", "standard", 0, true))
	mock.ExpectQuery("FROM reservations ORDER BY id").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_address", "location_id", "spot_id", "start_time", "end_time", "total_cost_cents", "refunded_cents", "status", "payment_method", "created_at", "updated_at"}).
			AddRow(1, string(alice), 1, "A1", ts, ts.Add(time.Hour), 599, 0, "ACTIVE", "card", ts, ts))
	mock.ExpectQuery("FROM wallets").WillReturnRows(
		sqlmock.NewRows([]string{"address", "balance_cents"}).AddRow(string(alice), 9401))
	mock.ExpectQuery("FROM treasury").WillReturnError(sql.ErrNoRows)

	snap, err := NewLedgerStore(db).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Locations, 1)
	assert.Equal(t, money.Cents(599), snap.Locations[0].BaseRate)
	require.Len(t, snap.Spots, 1)
	assert.Equal(t, ledger.SpotStandard, snap.Spots[0].Type)
	require.Len(t, snap.Reservations, 1)
	assert.Equal(t, alice, snap.Reservations[0].User)
	assert.Equal(t, ledger.StatusActive, snap.Reservations[0].Status)
	assert.Equal(t, money.Cents(9401), snap.Balances[alice])
	assert.Equal(t, money.Zero, snap.Treasury)
	assert.NoError(t, mock.ExpectationsWereMet())
}
