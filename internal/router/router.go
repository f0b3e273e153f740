// Package router registers the HTTP routes on an echo instance.
package router

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/handler"
	"github.com/iliyamo/parking-ledger/internal/middleware"
	"github.com/iliyamo/parking-ledger/internal/model"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
// metrics may be nil.
func RegisterRoutes(e *echo.Echo, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterAuth registers the token endpoints under /v1/auth and /v1/me.
// Logout works with either a refresh token in the body or a bearer token,
// so it sits outside the JWT group.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleOwner, model.RoleCustomer),
	)
}

// RegisterPublic registers the read-only browse endpoints. cache wraps
// each of them and may be nil.
func RegisterPublic(e *echo.Echo, h *handler.LedgerHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	g := e.Group("/v1/locations", mw...)
	g.GET("", h.ListLocations)
	g.GET("/:id", h.GetLocation)
	g.GET("/:id/spots", h.ListSpots)
	g.GET("/:id/spots/available", h.AvailableSpots)
	g.GET("/:id/spots/:spot", h.GetSpot)
	g.GET("/:id/spots/:spot/availability", h.SpotAvailability)
}
