package ledger

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/parking-ledger/internal/money"
)

// MaxTextLen bounds a location's name and street address, in characters.
const MaxTextLen = 255

// AddLocation registers a new active location with no spots. Owner only.
func (l *Ledger) AddLocation(ctx context.Context, name, address string, baseRate money.Cents) (int64, error) {
	if _, err := l.requireOwner(ctx); err != nil {
		return 0, err
	}
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxTextLen {
		return 0, ErrInvalidName
	}
	address = strings.TrimSpace(address)
	if utf8.RuneCountInString(address) > MaxTextLen {
		return 0, ErrInvalidLocationAddress
	}
	if baseRate <= 0 {
		return 0, ErrInvalidRate
	}
	var id int64
	err := l.update(ctx, "add_location", func(now time.Time) (ChangeSet, error) {
		id = l.nextLocationID
		loc := Location{
			ID:        id,
			Name:      name,
			Address:   address,
			BaseRate:  baseRate,
			Active:    true,
			CreatedAt: now,
		}
		ev := newEvent(EventLocationAdded, now)
		ev.LocationID = id
		ev.Amount = baseRate
		return ChangeSet{Locations: []Location{loc}, Events: []Event{ev}}, nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// SetLocationActive toggles whether new reservations may be made at the
// location. Existing reservations are unaffected. Owner only.
func (l *Ledger) SetLocationActive(ctx context.Context, locationID int64, active bool) error {
	if _, err := l.requireOwner(ctx); err != nil {
		return err
	}
	return l.update(ctx, "set_location_active", func(now time.Time) (ChangeSet, error) {
		loc, ok := l.locations[locationID]
		if !ok {
			return ChangeSet{}, ErrLocationNotFound
		}
		if loc.Active == active {
			return ChangeSet{}, nil
		}
		loc.Active = active
		ev := newEvent(EventLocationUpdated, now)
		ev.LocationID = locationID
		return ChangeSet{Locations: []Location{loc}, Events: []Event{ev}}, nil
	})
}

// AddSpot creates a spot in an active location. A zero rate means the
// location's base rate applies. Owner only.
func (l *Ledger) AddSpot(ctx context.Context, locationID int64, spotID string, rate money.Cents, typ SpotType) error {
	if _, err := l.requireOwner(ctx); err != nil {
		return err
	}
	if !spotIDRe.MatchString(spotID) {
		return ErrInvalidSpotID
	}
	if rate < 0 {
		return ErrInvalidRate
	}
	typ, err := ParseSpotType(string(typ))
	if err != nil {
		return err
	}
	return l.update(ctx, "add_spot", func(now time.Time) (ChangeSet, error) {
		loc, ok := l.locations[locationID]
		if !ok {
			return ChangeSet{}, ErrLocationNotFound
		}
		if !loc.Active {
			return ChangeSet{}, ErrLocationInactive
		}
		key := SpotKey{LocationID: locationID, SpotID: spotID}
		if _, dup := l.spots[key]; dup {
			return ChangeSet{}, ErrDuplicateSpot
		}
		spot := Spot{
			LocationID: locationID,
			ID:         spotID,
			Type:       typ,
			HourlyRate: rate,
			Available:  !l.occupied(key, now),
		}
		loc.TotalSpots++
		if spot.Available {
			loc.AvailableSpots++
		}
		ev := newEvent(EventSpotAdded, now)
		ev.LocationID = locationID
		ev.SpotID = spotID
		ev.Amount = spot.Rate(loc)
		return ChangeSet{Locations: []Location{loc}, Spots: []Spot{spot}, Events: []Event{ev}}, nil
	})
}

// RemoveSpot deletes a spot that has no active reservation still to run.
// Reservation history referencing the spot is kept. Owner only.
func (l *Ledger) RemoveSpot(ctx context.Context, locationID int64, spotID string) error {
	if _, err := l.requireOwner(ctx); err != nil {
		return err
	}
	return l.update(ctx, "remove_spot", func(now time.Time) (ChangeSet, error) {
		loc, ok := l.locations[locationID]
		if !ok {
			return ChangeSet{}, ErrLocationNotFound
		}
		key := SpotKey{LocationID: locationID, SpotID: spotID}
		spot, ok := l.spots[key]
		if !ok {
			return ChangeSet{}, ErrSpotNotFound
		}
		for _, id := range l.bySpot[key] {
			r := l.reservations[id]
			if r.Status == StatusActive && r.End.After(now) {
				return ChangeSet{}, ErrSpotInUse
			}
		}
		loc.TotalSpots--
		if spot.Available && loc.AvailableSpots > 0 {
			loc.AvailableSpots--
		}
		ev := newEvent(EventSpotRemoved, now)
		ev.LocationID = locationID
		ev.SpotID = spotID
		return ChangeSet{Locations: []Location{loc}, RemovedSpots: []SpotKey{key}, Events: []Event{ev}}, nil
	})
}

// LocationIDs returns every location id in creation order.
func (l *Ledger) LocationIDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int64, len(l.locOrder))
	copy(out, l.locOrder)
	return out
}

// Locations returns every location in creation order.
func (l *Ledger) Locations() []Location {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Location, 0, len(l.locOrder))
	for _, id := range l.locOrder {
		out = append(out, l.locations[id])
	}
	return out
}

// Location returns one location.
func (l *Ledger) Location(id int64) (Location, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	loc, ok := l.locations[id]
	if !ok {
		return Location{}, ErrLocationNotFound
	}
	return loc, nil
}

// Spot returns one spot.
func (l *Ledger) Spot(locationID int64, spotID string) (Spot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.locations[locationID]; !ok {
		return Spot{}, ErrLocationNotFound
	}
	s, ok := l.spots[SpotKey{LocationID: locationID, SpotID: spotID}]
	if !ok {
		return Spot{}, ErrSpotNotFound
	}
	return s, nil
}

// Spots lists the spots of a location in creation order.
func (l *Ledger) Spots(locationID int64) ([]Spot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.locations[locationID]; !ok {
		return nil, ErrLocationNotFound
	}
	ids := l.spotOrder[locationID]
	out := make([]Spot, 0, len(ids))
	for _, id := range ids {
		out = append(out, l.spots[SpotKey{LocationID: locationID, SpotID: id}])
	}
	return out, nil
}

// AvailableSpots returns the ids of spots whose availability flag is set,
// i.e. spots not occupied at the moment of the last update or sweep.
func (l *Ledger) AvailableSpots(locationID int64) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.locations[locationID]; !ok {
		return nil, ErrLocationNotFound
	}
	out := []string{}
	for _, id := range l.spotOrder[locationID] {
		if l.spots[SpotKey{LocationID: locationID, SpotID: id}].Available {
			out = append(out, id)
		}
	}
	return out, nil
}

// AvailableSpotsFor returns the ids of spots free for the whole window.
func (l *Ledger) AvailableSpotsFor(locationID int64, start time.Time, hours int64) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.locations[locationID]; !ok {
		return nil, ErrLocationNotFound
	}
	if !validHours(hours) {
		return nil, ErrInvalidDuration
	}
	out := []string{}
	for _, id := range l.spotOrder[locationID] {
		if l.spotFree(SpotKey{LocationID: locationID, SpotID: id}, start, hours) {
			out = append(out, id)
		}
	}
	return out, nil
}

// IsSpotAvailable reports whether the spot exists in an active location
// and no active reservation overlaps [start, start+hours).
func (l *Ledger) IsSpotAvailable(locationID int64, spotID string, start time.Time, hours int64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.spotFree(SpotKey{LocationID: locationID, SpotID: spotID}, start, hours)
}

func (l *Ledger) spotFree(key SpotKey, start time.Time, hours int64) bool {
	if !validHours(hours) {
		return false
	}
	loc, ok := l.locations[key.LocationID]
	if !ok || !loc.Active {
		return false
	}
	if _, ok := l.spots[key]; !ok {
		return false
	}
	return !l.conflicts(key, start, window(start, hours), 0)
}
