package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindUnauthorized:
		return http.StatusForbidden
	case ledger.KindConflict, ledger.KindInvalidState:
		return http.StatusConflict
	case ledger.KindInsufficientPayment:
		return http.StatusPaymentRequired
	case ledger.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ledgerError writes err as {"error","code"}. Internal errors are logged
// to log and their text hidden from the client.
func ledgerError(c echo.Context, log logrus.FieldLogger, err error) error {
	kind := ledger.KindOf(err)
	status := statusFor(kind)
	if kind == ledger.KindUnauthorized {
		if _, ok := ledger.CallerFrom(c.Request().Context()); !ok {
			status = http.StatusUnauthorized
		}
	}
	if status == http.StatusInternalServerError {
		log.WithError(err).WithField("path", c.Path()).Error("ledger call failed")
		return c.JSON(status, echo.Map{"error": "internal error", "code": ledger.CodeOf(err)})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": ledger.CodeOf(err)})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": "BAD_REQUEST"})
}
