// Package middleware holds the echo middleware shared by all routes.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id"
	CtxRole   = "role"
)

// JWTAuth validates a Bearer access token. On success the wallet address is
// stored under "user_id", the role under "role", and the request context
// carries the address as the ledger caller.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "UNAUTHENTICATED"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "UNAUTHENTICATED"})
			}
			addr, err := ledger.ParseAddress(claims.Subject)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token subject", "code": "UNAUTHENTICATED"})
			}

			c.Set(CtxUserID, addr.String())
			c.Set(CtxRole, claims.Role)
			req := c.Request()
			c.SetRequest(req.WithContext(ledger.WithCaller(req.Context(), addr)))
			return next(c)
		}
	}
}

// userID returns the authenticated address or "anon".
func userID(c echo.Context) string {
	if s, ok := c.Get(CtxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
