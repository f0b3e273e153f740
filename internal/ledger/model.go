package ledger

import (
	"regexp"
	"strings"
	"time"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// Address is a lower-cased wallet address, 0x followed by 40 hex digits.
type Address string

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseAddress validates and normalises a wallet address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !addressRe.MatchString(s) {
		return "", ErrInvalidAddress
	}
	return Address(strings.ToLower(s)), nil
}

func (a Address) String() string { return string(a) }

// SpotType is the closed set of spot kinds.
type SpotType string

const (
	SpotStandard SpotType = "standard"
	SpotHandicap SpotType = "handicap"
	SpotElectric SpotType = "electric"
)

// ParseSpotType accepts the enum values case-insensitively. An empty string
// means standard.
func ParseSpotType(s string) (SpotType, error) {
	switch SpotType(strings.ToLower(strings.TrimSpace(s))) {
	case SpotStandard, "":
		return SpotStandard, nil
	case SpotHandicap:
		return SpotHandicap, nil
	case SpotElectric:
		return SpotElectric, nil
	}
	return "", ErrInvalidSpotType
}

var spotIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// Status is the lifecycle state of a reservation.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Location is a parking facility. AvailableSpots counts spots not occupied
// at the current moment; it is a display aggregate only.
type Location struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Address        string      `json:"address"`
	BaseRate       money.Cents `json:"base_hourly_rate"`
	Active         bool        `json:"active"`
	TotalSpots     int         `json:"total_spots"`
	AvailableSpots int         `json:"available_spots"`
	CreatedAt      time.Time   `json:"created_at"`
}

// SpotKey identifies a spot across locations.
type SpotKey struct {
	LocationID int64
	SpotID     string
}

// Spot is a reservable space within a location. A zero HourlyRate means
// the location's base rate applies.
type Spot struct {
	LocationID int64       `json:"location_id"`
	ID         string      `json:"spot_id"`
	Type       SpotType    `json:"spot_type"`
	HourlyRate money.Cents `json:"hourly_rate"`
	Available  bool        `json:"available"`
}

// Key returns the composite key of the spot.
func (s Spot) Key() SpotKey { return SpotKey{LocationID: s.LocationID, SpotID: s.ID} }

// Rate resolves the effective hourly rate against the owning location.
func (s Spot) Rate(loc Location) money.Cents {
	if s.HourlyRate > 0 {
		return s.HourlyRate
	}
	return loc.BaseRate
}

// Reservation is a time-boxed claim on a spot. The window is [Start, End).
type Reservation struct {
	ID            int64       `json:"id"`
	User          Address     `json:"user"`
	LocationID    int64       `json:"location_id"`
	SpotID        string      `json:"spot_id"`
	Start         time.Time   `json:"start_time"`
	End           time.Time   `json:"end_time"`
	TotalCost     money.Cents `json:"total_cost"`
	Refunded      money.Cents `json:"refunded"`
	Status        Status      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Key returns the spot the reservation claims.
func (r Reservation) Key() SpotKey { return SpotKey{LocationID: r.LocationID, SpotID: r.SpotID} }

// Overlaps reports whether the reservation window intersects [start, end).
func (r Reservation) Overlaps(start, end time.Time) bool {
	return overlaps(r.Start, r.End, start, end)
}

// Covers reports whether t falls inside the window.
func (r Reservation) Covers(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Receipt describes where the money attached to a call went.
type Receipt struct {
	Paid     money.Cents `json:"paid"`
	Charged  money.Cents `json:"charged"`
	Refunded money.Cents `json:"refunded"`
}

// TreasuryState is the collected balance split into the escrowed part
// backing active reservations and the withdrawable rest.
type TreasuryState struct {
	Balance      money.Cents `json:"balance"`
	Escrowed     money.Cents `json:"escrowed"`
	Withdrawable money.Cents `json:"withdrawable"`
}

// SweepResult summarises one completion sweep.
type SweepResult struct {
	Completed  []int64 `json:"completed"`
	Reconciled int     `json:"reconciled_spots"`
}
