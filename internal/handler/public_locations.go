package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ListLocations handles GET /v1/locations.
func (h *LedgerHandler) ListLocations(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"ids":   h.L.LocationIDs(),
		"items": h.L.Locations(),
	})
}

// GetLocation handles GET /v1/locations/:id.
func (h *LedgerHandler) GetLocation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	loc, err := h.L.Location(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, loc)
}

// ListSpots handles GET /v1/locations/:id/spots.
func (h *LedgerHandler) ListSpots(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	spots, err := h.L.Spots(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": spots})
}

// AvailableSpots handles GET /v1/locations/:id/spots/available. Without a
// window it returns the spots free right now; with ?start=&hours= it
// returns the spots free for that whole window.
func (h *LedgerHandler) AvailableSpots(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	start, hours, windowed, err := parseWindow(c)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	var ids []string
	if windowed {
		ids, err = h.L.AvailableSpotsFor(id, start, hours)
	} else {
		ids, err = h.L.AvailableSpots(id)
	}
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"location_id": id, "spot_ids": ids})
}

// GetSpot handles GET /v1/locations/:id/spots/:spot.
func (h *LedgerHandler) GetSpot(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	spot, err := h.L.Spot(id, c.Param("spot"))
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, spot)
}

// SpotAvailability handles GET /v1/locations/:id/spots/:spot/availability?start=&hours=.
func (h *LedgerHandler) SpotAvailability(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	start, hours, windowed, err := parseWindow(c)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	if !windowed {
		return badRequest(c, "start and hours are required")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"location_id": id,
		"spot_id":     c.Param("spot"),
		"start_time":  start.Unix(),
		"hours":       hours,
		"available":   h.L.IsSpotAvailable(id, c.Param("spot"), start, hours),
	})
}
