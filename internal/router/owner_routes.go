package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/handler"
	"github.com/iliyamo/parking-ledger/internal/middleware"
	"github.com/iliyamo/parking-ledger/internal/model"
)

// RegisterOwner registers the administrative endpoints. They require the
// OWNER role; the ledger additionally checks the caller is the owner
// address.
func RegisterOwner(e *echo.Echo, h *handler.LedgerHandler, jwtSecret string) {
	g := e.Group("/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner),
	)

	g.POST("/locations", h.CreateLocation)
	g.PATCH("/locations/:id", h.UpdateLocation)
	g.POST("/locations/:id/spots", h.CreateSpot)
	g.DELETE("/locations/:id/spots/:spot", h.DeleteSpot)

	g.GET("/treasury", h.GetTreasury)
	g.POST("/treasury/withdraw", h.WithdrawTreasury)
	g.POST("/sweep", h.Sweep)
}
