// Package seed creates demo locations on an empty ledger.
package seed

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/money"
)

type demoLocation struct {
	name, address, rate, prefix string
}

var demo = []demoLocation{
	{"Downtown Garage", "100 Main St", "5.99", "A"},
	{"Airport Long Stay", "1 Terminal Rd", "8.50", "P"},
	{"Riverside Lot", "42 River Walk", "4.25", "R"},
}

var spotTypes = []ledger.SpotType{ledger.SpotStandard, ledger.SpotHandicap, ledger.SpotElectric}

// Demo adds three locations with five spots each, cycling spot types. It
// does nothing when the ledger already has locations.
func Demo(ctx context.Context, l *ledger.Ledger, log logrus.FieldLogger) error {
	if len(l.LocationIDs()) > 0 {
		return nil
	}
	ctx = ledger.WithCaller(ctx, l.Owner())
	for _, d := range demo {
		id, err := l.AddLocation(ctx, d.name, d.address, money.MustParse(d.rate))
		if err != nil {
			return fmt.Errorf("seed: add location %q: %w", d.name, err)
		}
		for i := 1; i <= 5; i++ {
			spotID := fmt.Sprintf("%s%d", d.prefix, i)
			if err := l.AddSpot(ctx, id, spotID, 0, spotTypes[(i-1)%len(spotTypes)]); err != nil {
				return fmt.Errorf("seed: add spot %s: %w", spotID, err)
			}
		}
		log.WithFields(logrus.Fields{"location_id": id, "name": d.name}).Info("seeded demo location")
	}
	return nil
}
