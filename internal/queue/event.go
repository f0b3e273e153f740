// Package queue defines the ledger event payload carried over RabbitMQ and
// the background consumer that records it.
package queue

import (
	"fmt"
	"time"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

// LedgerQueueName is the durable queue ledger events are published to.
const LedgerQueueName = "ledger.events"

// LedgerEvent is the wire form of a committed ledger change. Amounts are
// decimal strings so consumers never deal with floating point.
type LedgerEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	OccurredAt    string `json:"occurred_at"`
	LocationID    int64  `json:"location_id,omitempty"`
	SpotID        string `json:"spot_id,omitempty"`
	ReservationID int64  `json:"reservation_id,omitempty"`
	User          string `json:"user,omitempty"`
	Amount        string `json:"amount"`
}

// FromLedger converts a ledger event to its wire form.
func FromLedger(ev ledger.Event) LedgerEvent {
	return LedgerEvent{
		ID:            ev.ID,
		Type:          string(ev.Type),
		OccurredAt:    ev.At.UTC().Format(time.RFC3339),
		LocationID:    ev.LocationID,
		SpotID:        ev.SpotID,
		ReservationID: ev.ReservationID,
		User:          string(ev.User),
		Amount:        ev.Amount.String(),
	}
}

// Line renders the event as one activity-log line.
func (e LedgerEvent) Line() string {
	return fmt.Sprintf("[%s] %s | id=%s | reservation_id=%d | location_id=%d | spot=%q | user=%s | amount=%s\n",
		e.OccurredAt, e.Type, e.ID, e.ReservationID, e.LocationID, e.SpotID, e.User, e.Amount)
}
