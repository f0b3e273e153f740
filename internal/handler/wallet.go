package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

// GetWallet handles GET /v1/wallet.
func (h *LedgerHandler) GetWallet(c echo.Context) error {
	caller, ok := ledger.CallerFrom(c.Request().Context())
	if !ok {
		return ledgerError(c, h.Log, ledger.ErrUnauthorized)
	}
	return c.JSON(http.StatusOK, echo.Map{"address": caller, "balance": h.L.BalanceOf(caller)})
}

// Deposit handles POST /v1/wallet/deposit.
func (h *LedgerHandler) Deposit(c echo.Context) error {
	var req amountReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	balance, err := h.L.Deposit(c.Request().Context(), req.Amount)
	if err != nil {
		return ledgerError(c, h.Log, err)
	}
	caller, _ := ledger.CallerFrom(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{"address": caller, "balance": balance})
}
