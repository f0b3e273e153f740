package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/handler"
	"github.com/iliyamo/parking-ledger/internal/middleware"
	"github.com/iliyamo/parking-ledger/internal/model"
)

// RegisterCustomer registers the wallet and reservation endpoints for any
// authenticated account.
func RegisterCustomer(e *echo.Echo, h *handler.LedgerHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleCustomer),
	)

	g.GET("/wallet", h.GetWallet)
	g.POST("/wallet/deposit", h.Deposit)

	g.POST("/reservations", h.CreateReservation)
	g.GET("/my-reservations", h.MyReservations)
	g.GET("/users/:address/reservations", h.UserReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.POST("/reservations/:id/extend", h.ExtendReservation)
	g.DELETE("/reservations/:id", h.CancelReservation)
	g.POST("/reservations/:id/complete", h.CompleteReservation)
}
