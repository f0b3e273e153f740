package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/money"
)

type createReservationReq struct {
	LocationID    int64       `json:"location_id"`
	SpotID        string      `json:"spot_id"`
	StartTime     int64       `json:"start_time"`
	Hours         int64       `json:"hours"`
	PaymentMethod string      `json:"payment_method"`
	Payment       money.Cents `json:"payment"`
}

type extendReservationReq struct {
	Hours         int64       `json:"hours"`
	PaymentMethod string      `json:"payment_method"`
	Payment       money.Cents `json:"payment"`
}

// CreateReservation handles POST /v1/reservations.
func (h *LedgerHandler) CreateReservation(c echo.Context) error {
	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	var start time.Time
	if req.StartTime > 0 {
		start = time.Unix(req.StartTime, 0).UTC()
	}
	id, receipt, err := h.L.CreateReservation(c.Request().Context(), ledger.CreateParams{
		LocationID:    req.LocationID,
		SpotID:        req.SpotID,
		Start:         start,
		Hours:         req.Hours,
		PaymentMethod: req.PaymentMethod,
		Payment:       req.Payment,
	})
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	r, err := h.L.Reservation(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation_id": id, "receipt": receipt, "item": r})
}

// MyReservations handles GET /v1/my-reservations.
func (h *LedgerHandler) MyReservations(c echo.Context) error {
	caller, ok := ledger.CallerFrom(c.Request().Context())
	if !ok {
		return ledgerError(c, h.Log, ledger.ErrUnauthorized)
	}
	ids := h.L.UserReservations(caller)
	items := make([]ledger.Reservation, 0, len(ids))
	for _, id := range ids {
		r, err := h.L.Reservation(id)
		if err != nil {
			return ledgerError(c, h.Log, err)
		}
		items = append(items, r)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UserReservations handles GET /v1/users/:address/reservations.
func (h *LedgerHandler) UserReservations(c echo.Context) error {
	addr, err := ledger.ParseAddress(c.Param("address"))
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"address": addr, "reservation_ids": h.L.UserReservations(addr)})
}

// GetReservation handles GET /v1/reservations/:id.
func (h *LedgerHandler) GetReservation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	r, err := h.L.Reservation(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	elapsed, err := h.L.IsReservationElapsed(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r, "elapsed": elapsed})
}

// ExtendReservation handles POST /v1/reservations/:id/extend.
func (h *LedgerHandler) ExtendReservation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	var req extendReservationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	receipt, err := h.L.ExtendReservation(c.Request().Context(), id, req.Hours, req.PaymentMethod, req.Payment)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	r, err := h.L.Reservation(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"receipt": receipt, "item": r})
}

// CancelReservation handles DELETE /v1/reservations/:id.
func (h *LedgerHandler) CancelReservation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	receipt, err := h.L.CancelReservation(c.Request().Context(), id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	r, err := h.L.Reservation(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"receipt": receipt, "item": r})
}

// CompleteReservation handles POST /v1/reservations/:id/complete.
func (h *LedgerHandler) CompleteReservation(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid reservation id")
	}
	if err := h.L.CompleteReservation(c.Request().Context(), id); err != nil {
		return ledgerError(c, h.Log, err)
	}
	r, err := h.L.Reservation(id)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": r})
}
