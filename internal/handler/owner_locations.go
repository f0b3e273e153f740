package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/money"
)

type createLocationReq struct {
	Name     string      `json:"name"`
	Address  string      `json:"address"`
	BaseRate money.Cents `json:"base_hourly_rate"`
}

type updateLocationReq struct {
	Active *bool `json:"active"`
}

type createSpotReq struct {
	SpotID     string      `json:"spot_id"`
	HourlyRate money.Cents `json:"hourly_rate"`
	SpotType   string      `json:"spot_type"`
}

type amountReq struct {
	Amount money.Cents `json:"amount"`
}

// CreateLocation handles POST /v1/locations.
func (h *LedgerHandler) CreateLocation(c echo.Context) error {
	var req createLocationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx := c.Request().Context()
	id, err := h.L.AddLocation(ctx, req.Name, req.Address, req.BaseRate)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	loc, err := h.L.Location(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, loc)
}

// UpdateLocation handles PATCH /v1/locations/:id. Only the active flag can
// change.
func (h *LedgerHandler) UpdateLocation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	var req updateLocationReq
	if err := c.Bind(&req); err != nil || req.Active == nil {
		return badRequest(c, "active is required")
	}
	if err := h.L.SetLocationActive(c.Request().Context(), id, *req.Active); err != nil {
		return ledgerError(c, h.Log, err)
	}
	loc, err := h.L.Location(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, loc)
}

// CreateSpot handles POST /v1/locations/:id/spots.
func (h *LedgerHandler) CreateSpot(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	var req createSpotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	typ, err := ledger.ParseSpotType(req.SpotType)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	if err := h.L.AddSpot(c.Request().Context(), id, req.SpotID, req.HourlyRate, typ); err != nil {
		return ledgerError(c, h.Log, err)
	}
	spot, err := h.L.Spot(id, req.SpotID)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, spot)
}

// DeleteSpot handles DELETE /v1/locations/:id/spots/:spot.
func (h *LedgerHandler) DeleteSpot(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid location id")
	}
	if err := h.L.RemoveSpot(c.Request().Context(), id, c.Param("spot")); err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetTreasury handles GET /v1/treasury.
func (h *LedgerHandler) GetTreasury(c echo.Context) error {
	if caller, ok := ledger.CallerFrom(c.Request().Context()); !ok || caller != h.L.Owner() {
		return ledgerError(c, h.Log, ledger.ErrUnauthorized)
	}
	return c.JSON(http.StatusOK, h.L.Treasury())
}

// WithdrawTreasury handles POST /v1/treasury/withdraw.
func (h *LedgerHandler) WithdrawTreasury(c echo.Context) error {
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	state, err := h.L.WithdrawTreasury(c.Request().Context(), req.Amount)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, state)
}

// Sweep handles POST /v1/sweep, running the completion sweep on demand.
func (h *LedgerHandler) Sweep(c echo.Context) error {
	if caller, ok := ledger.CallerFrom(c.Request().Context()); !ok || caller != h.L.Owner() {
		return ledgerError(c, h.Log, ledger.ErrUnauthorized)
	}
	res, err := h.L.CompleteExpired(c.Request().Context())
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}
