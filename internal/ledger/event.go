package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// EventType names a committed ledger change.
type EventType string

const (
	EventLocationAdded        EventType = "location.added"
	EventLocationUpdated      EventType = "location.updated"
	EventSpotAdded            EventType = "spot.added"
	EventSpotRemoved          EventType = "spot.removed"
	EventReservationCreated   EventType = "reservation.created"
	EventReservationExtended  EventType = "reservation.extended"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationCompleted EventType = "reservation.completed"
	EventWalletDeposited      EventType = "wallet.deposited"
	EventTreasuryWithdrawn    EventType = "treasury.withdrawn"
)

// Event is a change notification emitted after a successful commit.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	At            time.Time   `json:"at"`
	LocationID    int64       `json:"location_id,omitempty"`
	SpotID        string      `json:"spot_id,omitempty"`
	ReservationID int64       `json:"reservation_id,omitempty"`
	User          Address     `json:"user,omitempty"`
	Amount        money.Cents `json:"amount"`
}

func newEvent(typ EventType, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, At: at}
}

// Notifier receives committed events. Failures are logged and never
// affect the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }
