// Package ledger is the authoritative state machine for parking locations,
// their spots and the reservations made against them. It enforces window
// exclusivity per spot, settles payments against wallet balances and the
// treasury, and drives the reservation lifecycle.
//
// Every mutation runs under one write lock: the operation validates against
// the in-memory state, builds a ChangeSet, hands it to the Store and applies
// it to memory only after the store accepted it. A failed operation
// therefore changes nothing, in memory or in the database.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/clock"
	"github.com/iliyamo/parking-ledger/internal/money"
)

// Observer receives one sample per ledger mutation. outcome is "ok" or the
// Kind of the returned error.
type Observer interface {
	ObserveLedgerOp(op, outcome string, d time.Duration)
}

// Ledger holds the full reservation state in memory.
type Ledger struct {
	mu sync.RWMutex

	owner     Address
	store     Store
	clock     clock.Clock
	refund    RefundPolicy
	notifiers []Notifier
	log       logrus.FieldLogger
	obs       Observer

	locations    map[int64]Location
	locOrder     []int64
	spots        map[SpotKey]Spot
	spotOrder    map[int64][]string
	reservations map[int64]Reservation
	bySpot       map[SpotKey][]int64
	byUser       map[Address][]int64
	balances     map[Address]money.Cents
	treasury     money.Cents

	nextLocationID    int64
	nextReservationID int64
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithStore sets the persistence backend. Without it the ledger is purely
// in memory.
func WithStore(s Store) Option { return func(l *Ledger) { l.store = s } }

// WithClock overrides the time source.
func WithClock(c clock.Clock) Option { return func(l *Ledger) { l.clock = c } }

// WithRefundPolicy sets the cancellation refund policy.
func WithRefundPolicy(p RefundPolicy) Option { return func(l *Ledger) { l.refund = p } }

// WithNotifier adds a receiver for committed events.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifiers = append(l.notifiers, n) }
}

// WithLogger sets the logger used for committed operations.
func WithLogger(log logrus.FieldLogger) Option { return func(l *Ledger) { l.log = log } }

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option { return func(l *Ledger) { l.obs = o } }

// New returns an empty ledger administered by owner.
func New(owner Address, opts ...Option) *Ledger {
	l := &Ledger{
		owner:  owner,
		store:  nopStore{},
		clock:  clock.NewSystem(),
		refund: FullBeforeStart,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reset()
	return l
}

// Owner returns the administrative address.
func (l *Ledger) Owner() Address { return l.owner }

func (l *Ledger) reset() {
	l.locations = make(map[int64]Location)
	l.locOrder = nil
	l.spots = make(map[SpotKey]Spot)
	l.spotOrder = make(map[int64][]string)
	l.reservations = make(map[int64]Reservation)
	l.bySpot = make(map[SpotKey][]int64)
	l.byUser = make(map[Address][]int64)
	l.balances = make(map[Address]money.Cents)
	l.treasury = 0
	l.nextLocationID = 1
	l.nextReservationID = 1
}

// Restore replaces the in-memory state with the store's snapshot.
func (l *Ledger) Restore(ctx context.Context) error {
	snap, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load snapshot: %w", err)
	}
	sort.Slice(snap.Locations, func(i, j int) bool { return snap.Locations[i].ID < snap.Locations[j].ID })
	sort.Slice(snap.Reservations, func(i, j int) bool { return snap.Reservations[i].ID < snap.Reservations[j].ID })

	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
	treasury := snap.Treasury
	l.apply(ChangeSet{
		Locations:    snap.Locations,
		Spots:        snap.Spots,
		Reservations: snap.Reservations,
		Balances:     snap.Balances,
		Treasury:     &treasury,
	})
	l.log.WithFields(logrus.Fields{
		"locations":    len(snap.Locations),
		"spots":        len(snap.Spots),
		"reservations": len(snap.Reservations),
	}).Info("ledger restored")
	return nil
}

// update runs build under the write lock, commits its change set and
// applies it. Events are published after the lock is released.
func (l *Ledger) update(ctx context.Context, op string, build func(now time.Time) (ChangeSet, error)) error {
	began := time.Now()

	l.mu.Lock()
	now := l.clock.Now()
	cs, err := build(now)
	if err == nil && !cs.Empty() {
		cs.Op = op
		if cerr := l.store.Commit(ctx, cs); cerr != nil {
			err = fmt.Errorf("ledger: commit %s: %w", op, cerr)
		} else {
			l.apply(cs)
		}
	}
	l.mu.Unlock()

	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	if l.obs != nil {
		l.obs.ObserveLedgerOp(op, outcome, time.Since(began))
	}
	if err != nil {
		entry := l.log.WithField("op", op).WithError(err)
		if KindOf(err) == KindInternal {
			entry.Error("ledger operation failed")
		} else {
			entry.Debug("ledger operation rejected")
		}
		return err
	}
	for _, ev := range cs.Events {
		l.log.WithFields(eventFields(op, ev)).Info("ledger operation committed")
	}
	l.publish(ctx, cs.Events)
	return nil
}

// eventFields carries only the identifiers the event actually names.
func eventFields(op string, ev Event) logrus.Fields {
	f := logrus.Fields{"op": op, "event": ev.Type}
	if ev.LocationID != 0 {
		f["location_id"] = ev.LocationID
	}
	if ev.SpotID != "" {
		f["spot_id"] = ev.SpotID
	}
	if ev.ReservationID != 0 {
		f["reservation_id"] = ev.ReservationID
	}
	if ev.User != "" {
		f["user"] = ev.User
	}
	if ev.Amount != 0 {
		f["amount"] = ev.Amount
	}
	return f
}

func (l *Ledger) publish(ctx context.Context, events []Event) {
	if len(l.notifiers) == 0 || len(events) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		for _, n := range l.notifiers {
			if err := n.Notify(ctx, ev); err != nil {
				l.log.WithError(err).WithField("event", ev.Type).Warn("ledger notifier failed")
			}
		}
	}
}

func (l *Ledger) apply(cs ChangeSet) {
	for _, loc := range cs.Locations {
		if _, ok := l.locations[loc.ID]; !ok {
			l.locOrder = append(l.locOrder, loc.ID)
		}
		l.locations[loc.ID] = loc
		if loc.ID >= l.nextLocationID {
			l.nextLocationID = loc.ID + 1
		}
	}
	for _, key := range cs.RemovedSpots {
		delete(l.spots, key)
		ids := l.spotOrder[key.LocationID]
		for i, id := range ids {
			if id == key.SpotID {
				l.spotOrder[key.LocationID] = append(ids[:i:i], ids[i+1:]...)
				break
			}
		}
	}
	for _, s := range cs.Spots {
		key := s.Key()
		if _, ok := l.spots[key]; !ok {
			l.spotOrder[key.LocationID] = append(l.spotOrder[key.LocationID], key.SpotID)
		}
		l.spots[key] = s
	}
	for _, r := range cs.Reservations {
		if _, ok := l.reservations[r.ID]; !ok {
			key := r.Key()
			l.bySpot[key] = append(l.bySpot[key], r.ID)
			l.byUser[r.User] = append(l.byUser[r.User], r.ID)
		}
		l.reservations[r.ID] = r
		if r.ID >= l.nextReservationID {
			l.nextReservationID = r.ID + 1
		}
	}
	for addr, v := range cs.Balances {
		l.balances[addr] = v
	}
	if cs.Treasury != nil {
		l.treasury = *cs.Treasury
	}
}

func (l *Ledger) requireOwner(ctx context.Context) (Address, error) {
	caller, ok := CallerFrom(ctx)
	if !ok || caller != l.owner {
		return "", ErrUnauthorized
	}
	return caller, nil
}

// pendingLocation returns the location as it will be after cs applies.
func (l *Ledger) pendingLocation(cs *ChangeSet, id int64) (Location, bool) {
	for _, loc := range cs.Locations {
		if loc.ID == id {
			return loc, true
		}
	}
	loc, ok := l.locations[id]
	return loc, ok
}

func (cs *ChangeSet) putLocation(loc Location) {
	for i := range cs.Locations {
		if cs.Locations[i].ID == loc.ID {
			cs.Locations[i] = loc
			return
		}
	}
	cs.Locations = append(cs.Locations, loc)
}

func (cs *ChangeSet) putSpot(s Spot) {
	for i := range cs.Spots {
		if cs.Spots[i].Key() == s.Key() {
			cs.Spots[i] = s
			return
		}
	}
	cs.Spots = append(cs.Spots, s)
}

func (l *Ledger) pendingBalance(cs *ChangeSet, addr Address) money.Cents {
	if v, ok := cs.Balances[addr]; ok {
		return v
	}
	return l.balances[addr]
}

func (l *Ledger) pendingTreasury(cs *ChangeSet) money.Cents {
	if cs.Treasury != nil {
		return *cs.Treasury
	}
	return l.treasury
}

// occupied reports whether an active reservation on key covers t. Versions
// in changed take precedence over the stored ones and may be new.
func (l *Ledger) occupied(key SpotKey, t time.Time, changed ...Reservation) bool {
	var seen map[int64]bool
	for _, r := range changed {
		if r.Key() != key {
			continue
		}
		if seen == nil {
			seen = make(map[int64]bool, len(changed))
		}
		seen[r.ID] = true
		if r.Status == StatusActive && r.Covers(t) {
			return true
		}
	}
	for _, id := range l.bySpot[key] {
		if seen[id] {
			continue
		}
		r := l.reservations[id]
		if r.Status == StatusActive && r.Covers(t) {
			return true
		}
	}
	return false
}

// conflicts reports whether an active reservation on key other than except
// overlaps [start, end).
func (l *Ledger) conflicts(key SpotKey, start, end time.Time, except int64) bool {
	for _, id := range l.bySpot[key] {
		if id == except {
			continue
		}
		r := l.reservations[id]
		if r.Status == StatusActive && r.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// settleSpot brings the spot's availability flag and its location's
// counter in line with occupancy at now once changed is applied.
func (l *Ledger) settleSpot(cs *ChangeSet, key SpotKey, now time.Time, changed ...Reservation) {
	spot, ok := l.spots[key]
	if !ok {
		return
	}
	avail := !l.occupied(key, now, changed...)
	if spot.Available == avail {
		return
	}
	spot.Available = avail
	cs.putSpot(spot)
	loc, ok := l.pendingLocation(cs, key.LocationID)
	if !ok {
		return
	}
	if avail {
		loc.AvailableSpots++
	} else if loc.AvailableSpots > 0 {
		loc.AvailableSpots--
	}
	cs.putLocation(loc)
}

func (l *Ledger) escrowed() money.Cents {
	var sum money.Cents
	for _, r := range l.reservations {
		if r.Status == StatusActive {
			sum += r.TotalCost
		}
	}
	return sum
}
