package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/money"
)

// LedgerStore persists the reservation ledger in MySQL. Every change set
// is written inside a single transaction using upserts keyed by the ledger's
// own identifiers, so replaying a commit is harmless.
type LedgerStore struct {
	db *sql.DB
}

var _ ledger.Store = (*LedgerStore)(nil)

// NewLedgerStore returns a LedgerStore bound to the given database.
func NewLedgerStore(db *sql.DB) *LedgerStore { return &LedgerStore{db: db} }

const (
	upsertLocation = `INSERT INTO locations (id, name, address, base_rate_cents, is_active, total_spots, available_spots, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE name=VALUES(name), address=VALUES(address), base_rate_cents=VALUES(base_rate_cents),
is_active=VALUES(is_active), total_spots=VALUES(total_spots), available_spots=VALUES(available_spots)`

	deleteSpot = `DELETE FROM spots WHERE location_id = ? AND spot_id = ?`

	upsertSpot = `INSERT INTO spots (location_id, spot_id, spot_type, rate_cents, is_available)
VALUES (?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE spot_type=VALUES(spot_type), rate_cents=VALUES(rate_cents), is_available=VALUES(is_available)`

	upsertReservation = `INSERT INTO reservations (id, user_address, location_id, spot_id, start_time, end_time, total_cost_cents, refunded_cents, status, payment_method, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE end_time=VALUES(end_time), total_cost_cents=VALUES(total_cost_cents), refunded_cents=VALUES(refunded_cents),
status=VALUES(status), payment_method=VALUES(payment_method), updated_at=VALUES(updated_at)`

	upsertWallet = `INSERT INTO wallets (address, balance_cents) VALUES (?, ?)
ON DUPLICATE KEY UPDATE balance_cents=VALUES(balance_cents)`

	upsertTreasury = `INSERT INTO treasury (id, balance_cents) VALUES (1, ?)
ON DUPLICATE KEY UPDATE balance_cents=VALUES(balance_cents)`
)

// Commit writes the change set atomically. Any failure rolls the whole
// transaction back.
func (s *LedgerStore) Commit(ctx context.Context, cs ledger.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", cs.Op, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for _, l := range cs.Locations {
		if _, err := tx.ExecContext(ctx, upsertLocation,
			l.ID, l.Name, l.Address, int64(l.BaseRate), l.Active, l.TotalSpots, l.AvailableSpots, l.CreatedAt,
		); err != nil {
			return fmt.Errorf("upsert location %d: %w", l.ID, err)
		}
	}
	for _, k := range cs.RemovedSpots {
		if _, err := tx.ExecContext(ctx, deleteSpot, k.LocationID, k.SpotID); err != nil {
			return fmt.Errorf("delete spot %d/%s: %w", k.LocationID, k.SpotID, err)
		}
	}
	for _, sp := range cs.Spots {
		if _, err := tx.ExecContext(ctx, upsertSpot,
			sp.LocationID, sp.ID, string(sp.Type), int64(sp.HourlyRate), sp.Available,
		); err != nil {
			return fmt.Errorf("upsert spot %d/%s: %w", sp.LocationID, sp.ID, err)
		}
	}
	for _, r := range cs.Reservations {
		if _, err := tx.ExecContext(ctx, upsertReservation,
			r.ID, string(r.User), r.LocationID, r.SpotID, r.Start, r.End,
			int64(r.TotalCost), int64(r.Refunded), string(r.Status), r.PaymentMethod, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return fmt.Errorf("upsert reservation %d: %w", r.ID, err)
		}
	}

	// sorted so concurrent writers lock wallet rows in the same order
	addrs := make([]string, 0, len(cs.Balances))
	for a := range cs.Balances {
		addrs = append(addrs, string(a))
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		if _, err := tx.ExecContext(ctx, upsertWallet, a, int64(cs.Balances[ledger.Address(a)])); err != nil {
			return fmt.Errorf("upsert wallet %s: %w", a, err)
		}
	}
	if cs.Treasury != nil {
		if _, err := tx.ExecContext(ctx, upsertTreasury, int64(*cs.Treasury)); err != nil {
			return fmt.Errorf("upsert treasury: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", cs.Op, err)
	}
	committed = true
	return nil
}

// Load reads the whole ledger state. Spots come back in insertion order so
// listings keep the order in which the owner created them.
func (s *LedgerStore) Load(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	var err error

	if snap.Locations, err = s.loadLocations(ctx); err != nil {
		return snap, err
	}
	if snap.Spots, err = s.loadSpots(ctx); err != nil {
		return snap, err
	}
	if snap.Reservations, err = s.loadReservations(ctx); err != nil {
		return snap, err
	}
	if snap.Balances, err = s.loadBalances(ctx); err != nil {
		return snap, err
	}

	var treasury int64
	err = s.db.QueryRowContext(ctx, `SELECT balance_cents FROM treasury WHERE id = 1`).Scan(&treasury)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("load treasury: %w", err)
	}
	snap.Treasury = money.Cents(treasury)
	return snap, nil
}

func (s *LedgerStore) loadLocations(ctx context.Context) ([]ledger.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address, base_rate_cents, is_active, total_spots, available_spots, created_at
FROM locations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	defer rows.Close()
	var out []ledger.Location
	for rows.Next() {
		var (
			l    ledger.Location
			rate int64
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Address, &rate, &l.Active, &l.TotalSpots, &l.AvailableSpots, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		l.BaseRate = money.Cents(rate)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *LedgerStore) loadSpots(ctx context.Context) ([]ledger.Spot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT location_id, spot_id, spot_type, rate_cents, is_available FROM spots ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load spots: %w", err)
	}
	defer rows.Close()
	var out []ledger.Spot
	for rows.Next() {
		var (
			sp   ledger.Spot
			typ  string
			rate int64
		)
		if err := rows.Scan(&sp.LocationID, &sp.ID, &typ, &rate, &sp.Available); err != nil {
			return nil, fmt.Errorf("scan spot: %w", err)
		}
		sp.Type = ledger.SpotType(typ)
		sp.HourlyRate = money.Cents(rate)
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *LedgerStore) loadReservations(ctx context.Context) ([]ledger.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_address, location_id, spot_id, start_time, end_time, total_cost_cents, refunded_cents, status, payment_method, created_at, updated_at
FROM reservations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load reservations: %w", err)
	}
	defer rows.Close()
	var out []ledger.Reservation
	for rows.Next() {
		var (
			r               ledger.Reservation
			user, status    string
			cost, refunded  int64
			start, end      time.Time
			created, update time.Time
		)
		if err := rows.Scan(&r.ID, &user, &r.LocationID, &r.SpotID, &start, &end, &cost, &refunded, &status, &r.PaymentMethod, &created, &update); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		r.User = ledger.Address(user)
		r.Start, r.End = start.UTC(), end.UTC()
		r.CreatedAt, r.UpdatedAt = created.UTC(), update.UTC()
		r.TotalCost, r.Refunded = money.Cents(cost), money.Cents(refunded)
		r.Status = ledger.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *LedgerStore) loadBalances(ctx context.Context) (map[ledger.Address]money.Cents, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, balance_cents FROM wallets`)
	if err != nil {
		return nil, fmt.Errorf("load wallets: %w", err)
	}
	defer rows.Close()
	out := make(map[ledger.Address]money.Cents)
	for rows.Next() {
		var (
			addr string
			bal  int64
		)
		if err := rows.Scan(&addr, &bal); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		out[ledger.Address(addr)] = money.Cents(bal)
	}
	return out, rows.Err()
}
