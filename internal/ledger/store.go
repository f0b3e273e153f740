package ledger

import (
	"context"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// Snapshot is the full persisted state the ledger restores from at start.
type Snapshot struct {
	Locations    []Location
	Spots        []Spot
	Reservations []Reservation
	Balances     map[Address]money.Cents
	Treasury     money.Cents
}

// ChangeSet is everything one ledger operation writes. Records are full
// new versions; balances are absolute values, not deltas.
type ChangeSet struct {
	Op           string
	Locations    []Location
	Spots        []Spot
	RemovedSpots []SpotKey
	Reservations []Reservation
	Balances     map[Address]money.Cents
	Treasury     *money.Cents
	Events       []Event
}

func (cs *ChangeSet) setBalance(addr Address, v money.Cents) {
	if cs.Balances == nil {
		cs.Balances = make(map[Address]money.Cents)
	}
	cs.Balances[addr] = v
}

func (cs *ChangeSet) setTreasury(v money.Cents) {
	cs.Treasury = &v
}

// Empty reports whether the change set writes nothing.
func (cs ChangeSet) Empty() bool {
	return len(cs.Locations) == 0 && len(cs.Spots) == 0 && len(cs.RemovedSpots) == 0 &&
		len(cs.Reservations) == 0 && len(cs.Balances) == 0 && cs.Treasury == nil
}

// Store persists ledger state. Commit must apply the whole change set or
// nothing; the ledger only updates memory after Commit returns nil.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Commit(ctx context.Context, cs ChangeSet) error
}

// nopStore keeps the ledger purely in memory.
type nopStore struct{}

func (nopStore) Load(context.Context) (Snapshot, error)  { return Snapshot{}, nil }
func (nopStore) Commit(context.Context, ChangeSet) error { return nil }
