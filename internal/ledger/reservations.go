package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// MaxHours bounds a single booking or extension.
const MaxHours = 24 * 365

// MaxPaymentMethodLen is the longest payment method label kept, in
// characters.
const MaxPaymentMethodLen = 64

// Reservation windows must fit a MySQL DATETIME.
var (
	earliestTime = time.Date(1000, 1, 1, 0, 0, 0, 0, time.UTC)
	latestTime   = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

func validHours(h int64) bool { return h > 0 && h <= MaxHours }

func validPaymentMethod(m string) bool { return utf8.RuneCountInString(m) <= MaxPaymentMethodLen }

func window(start time.Time, hours int64) time.Time {
	return start.Add(time.Duration(hours) * time.Hour)
}

// CreateParams are the inputs of CreateReservation. Payment is the amount
// the caller attaches; anything above the cost is handed back.
type CreateParams struct {
	LocationID    int64
	SpotID        string
	Start         time.Time
	Hours         int64
	PaymentMethod string
	Payment       money.Cents
}

// CreateReservation books [Start, Start+Hours) on a spot for the caller.
// The caller's wallet is charged exactly rate × hours and the treasury
// credited the same amount.
func (l *Ledger) CreateReservation(ctx context.Context, p CreateParams) (int64, Receipt, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return 0, Receipt{}, err
	}
	if !validHours(p.Hours) {
		return 0, Receipt{}, ErrInvalidDuration
	}
	if p.Start.IsZero() {
		return 0, Receipt{}, ErrInvalidStart
	}
	if p.Payment < 0 {
		return 0, Receipt{}, ErrInvalidAmount
	}
	method := strings.TrimSpace(p.PaymentMethod)
	if !validPaymentMethod(method) {
		return 0, Receipt{}, ErrInvalidPaymentMethod
	}
	start := p.Start.UTC()
	end := window(start, p.Hours)
	if start.Before(earliestTime) || end.After(latestTime) {
		return 0, Receipt{}, ErrInvalidStart
	}

	var (
		id      int64
		receipt Receipt
	)
	err = l.update(ctx, "create_reservation", func(now time.Time) (ChangeSet, error) {
		loc, ok := l.locations[p.LocationID]
		if !ok {
			return ChangeSet{}, ErrLocationNotFound
		}
		key := SpotKey{LocationID: p.LocationID, SpotID: p.SpotID}
		spot, ok := l.spots[key]
		if !ok {
			return ChangeSet{}, ErrSpotNotFound
		}
		if !loc.Active {
			return ChangeSet{}, ErrLocationInactive
		}
		if !end.After(now) {
			return ChangeSet{}, ErrInvalidStart
		}
		if l.conflicts(key, start, end, 0) {
			return ChangeSet{}, ErrSpotUnavailable
		}
		cost, err := spot.Rate(loc).MulHours(p.Hours)
		if err != nil {
			return ChangeSet{}, ErrInvalidAmount
		}
		if p.Payment < cost {
			return ChangeSet{}, ErrInsufficientPayment
		}
		var cs ChangeSet
		bal := l.pendingBalance(&cs, caller)
		if bal < p.Payment {
			return ChangeSet{}, ErrInsufficientFunds
		}

		id = l.nextReservationID
		r := Reservation{
			ID:            id,
			User:          caller,
			LocationID:    p.LocationID,
			SpotID:        p.SpotID,
			Start:         start,
			End:           end,
			TotalCost:     cost,
			Status:        StatusActive,
			PaymentMethod: method,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		cs.Reservations = []Reservation{r}
		cs.setBalance(caller, bal-cost)
		cs.setTreasury(l.pendingTreasury(&cs) + cost)
		l.settleSpot(&cs, key, now, r)

		ev := newEvent(EventReservationCreated, now)
		ev.LocationID, ev.SpotID, ev.ReservationID, ev.User, ev.Amount = r.LocationID, r.SpotID, id, caller, cost
		cs.Events = []Event{ev}

		receipt = Receipt{Paid: p.Payment, Charged: cost, Refunded: p.Payment - cost}
		return cs, nil
	})
	if err != nil {
		return 0, Receipt{}, err
	}
	return id, receipt, nil
}

// ExtendReservation pushes the end of an active reservation out by hours.
// Only the reservation's user may extend it, and the added window must not
// overlap any other active reservation on the spot.
func (l *Ledger) ExtendReservation(ctx context.Context, id, hours int64, paymentMethod string, payment money.Cents) (Receipt, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if !validHours(hours) {
		return Receipt{}, ErrInvalidDuration
	}
	if payment < 0 {
		return Receipt{}, ErrInvalidAmount
	}
	method := strings.TrimSpace(paymentMethod)
	if !validPaymentMethod(method) {
		return Receipt{}, ErrInvalidPaymentMethod
	}

	var receipt Receipt
	err = l.update(ctx, "extend_reservation", func(now time.Time) (ChangeSet, error) {
		r, ok := l.reservations[id]
		if !ok {
			return ChangeSet{}, ErrReservationNotFound
		}
		if r.User != caller {
			return ChangeSet{}, ErrNotOwner
		}
		if r.Status != StatusActive {
			return ChangeSet{}, ErrReservationNotActive
		}
		key := r.Key()
		spot, ok := l.spots[key]
		if !ok {
			return ChangeSet{}, ErrSpotNotFound
		}
		newEnd := window(r.End, hours)
		if newEnd.After(latestTime) {
			return ChangeSet{}, ErrInvalidDuration
		}
		if l.conflicts(key, r.End, newEnd, r.ID) {
			return ChangeSet{}, ErrWindowConflict
		}
		cost, err := spot.Rate(l.locations[r.LocationID]).MulHours(hours)
		if err != nil {
			return ChangeSet{}, ErrInvalidAmount
		}
		if payment < cost {
			return ChangeSet{}, ErrInsufficientPayment
		}
		var cs ChangeSet
		bal := l.pendingBalance(&cs, caller)
		if bal < payment {
			return ChangeSet{}, ErrInsufficientFunds
		}

		r.End = newEnd
		r.TotalCost += cost
		if method != "" {
			r.PaymentMethod = method
		}
		r.UpdatedAt = now
		cs.Reservations = []Reservation{r}
		cs.setBalance(caller, bal-cost)
		cs.setTreasury(l.pendingTreasury(&cs) + cost)
		l.settleSpot(&cs, key, now, r)

		ev := newEvent(EventReservationExtended, now)
		ev.LocationID, ev.SpotID, ev.ReservationID, ev.User, ev.Amount = r.LocationID, r.SpotID, r.ID, caller, cost
		cs.Events = []Event{ev}

		receipt = Receipt{Paid: payment, Charged: cost, Refunded: payment - cost}
		return cs, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// CancelReservation cancels an active reservation on behalf of its user or
// the owner. The refund policy decides how much of the total cost moves
// from the treasury back to the user's wallet.
func (l *Ledger) CancelReservation(ctx context.Context, id int64) (Receipt, error) {
	caller, err := requireCaller(ctx)
	if err != nil {
		return Receipt{}, err
	}

	var receipt Receipt
	err = l.update(ctx, "cancel_reservation", func(now time.Time) (ChangeSet, error) {
		r, ok := l.reservations[id]
		if !ok {
			return ChangeSet{}, ErrReservationNotFound
		}
		if r.User != caller && caller != l.owner {
			return ChangeSet{}, ErrNotOwner
		}
		switch r.Status {
		case StatusCancelled:
			return ChangeSet{}, ErrAlreadyCancelled
		case StatusCompleted:
			return ChangeSet{}, ErrAlreadyCompleted
		}

		refund := r.TotalCost.Fraction(l.refund(now, r.Start, r.End))
		var cs ChangeSet
		treasury := l.pendingTreasury(&cs)
		if refund > treasury {
			return ChangeSet{}, fmt.Errorf("ledger: treasury %s cannot cover refund %s for reservation %d", treasury, refund, id)
		}
		r.Status = StatusCancelled
		r.Refunded = refund
		r.UpdatedAt = now
		cs.Reservations = []Reservation{r}
		if refund > 0 {
			cs.setBalance(r.User, l.pendingBalance(&cs, r.User)+refund)
			cs.setTreasury(treasury - refund)
		}
		l.settleSpot(&cs, r.Key(), now, r)

		ev := newEvent(EventReservationCancelled, now)
		ev.LocationID, ev.SpotID, ev.ReservationID, ev.User, ev.Amount = r.LocationID, r.SpotID, r.ID, r.User, refund
		cs.Events = []Event{ev}

		receipt = Receipt{Charged: r.TotalCost - refund, Refunded: refund}
		return cs, nil
	})
	if err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}

// CompleteReservation moves an elapsed active reservation to Completed.
// Completing an already completed reservation is a no-op.
func (l *Ledger) CompleteReservation(ctx context.Context, id int64) error {
	return l.update(ctx, "complete_reservation", func(now time.Time) (ChangeSet, error) {
		r, ok := l.reservations[id]
		if !ok {
			return ChangeSet{}, ErrReservationNotFound
		}
		switch r.Status {
		case StatusCompleted:
			return ChangeSet{}, nil
		case StatusCancelled:
			return ChangeSet{}, ErrAlreadyCancelled
		}
		if now.Before(r.End) {
			return ChangeSet{}, ErrWindowNotElapsed
		}
		var cs ChangeSet
		l.complete(&cs, r, now)
		l.settleSpot(&cs, r.Key(), now, cs.Reservations...)
		return cs, nil
	})
}

func (l *Ledger) complete(cs *ChangeSet, r Reservation, now time.Time) {
	r.Status = StatusCompleted
	r.UpdatedAt = now
	cs.Reservations = append(cs.Reservations, r)
	ev := newEvent(EventReservationCompleted, now)
	ev.LocationID, ev.SpotID, ev.ReservationID, ev.User, ev.Amount = r.LocationID, r.SpotID, r.ID, r.User, r.TotalCost
	cs.Events = append(cs.Events, ev)
}

// CompleteExpired completes every elapsed active reservation and
// reconciles each spot's availability flag and each location's counter
// with occupancy at the current moment. Running it twice in a row changes
// nothing the second time.
func (l *Ledger) CompleteExpired(ctx context.Context) (SweepResult, error) {
	res := SweepResult{Completed: []int64{}}
	err := l.update(ctx, "complete_expired", func(now time.Time) (ChangeSet, error) {
		var cs ChangeSet
		ids := make([]int64, 0, len(l.reservations))
		for id, r := range l.reservations {
			if r.Status == StatusActive && !now.Before(r.End) {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			l.complete(&cs, l.reservations[id], now)
			res.Completed = append(res.Completed, id)
		}

		for _, locID := range l.locOrder {
			loc := l.locations[locID]
			avail := 0
			for _, spotID := range l.spotOrder[locID] {
				key := SpotKey{LocationID: locID, SpotID: spotID}
				spot := l.spots[key]
				free := !l.occupied(key, now, cs.Reservations...)
				if free {
					avail++
				}
				if spot.Available != free {
					spot.Available = free
					cs.putSpot(spot)
					res.Reconciled++
				}
			}
			if loc.AvailableSpots != avail || loc.TotalSpots != len(l.spotOrder[locID]) {
				loc.AvailableSpots = avail
				loc.TotalSpots = len(l.spotOrder[locID])
				cs.putLocation(loc)
			}
		}
		return cs, nil
	})
	if err != nil {
		return SweepResult{}, err
	}
	return res, nil
}

// Reservation returns one reservation.
func (l *Ledger) Reservation(id int64) (Reservation, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.reservations[id]
	if !ok {
		return Reservation{}, ErrReservationNotFound
	}
	return r, nil
}

// IsReservationElapsed reports whether the reservation's window is in the
// past.
func (l *Ledger) IsReservationElapsed(id int64) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.reservations[id]
	if !ok {
		return false, ErrReservationNotFound
	}
	return !l.clock.Now().Before(r.End), nil
}

// UserReservations returns every reservation id the user ever created, in
// creation order.
func (l *Ledger) UserReservations(user Address) []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := l.byUser[user]
	out := make([]int64, len(ids))
	copy(out, ids)
	return out
}
