package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/parking-ledger/internal/ledger"
)

// LedgerHandler serves the location, spot, wallet and reservation
// endpoints straight from the in-memory ledger.
type LedgerHandler struct {
	L   *ledger.Ledger
	Log logrus.FieldLogger
}

func NewLedgerHandler(l *ledger.Ledger, log logrus.FieldLogger) *LedgerHandler {
	if l == nil {
		panic("nil ledger passed to NewLedgerHandler")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LedgerHandler{L: l, Log: log}
}

func parseID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseWindow reads ?start=<unix seconds>&hours=<n>. ok is false when
// either is missing; err is set when present but malformed.
func parseWindow(c echo.Context) (start time.Time, hours int64, ok bool, err error) {
	rawStart := strings.TrimSpace(c.QueryParam("start"))
	rawHours := strings.TrimSpace(c.QueryParam("hours"))
	if rawStart == "" && rawHours == "" {
		return time.Time{}, 0, false, nil
	}
	secs, err := strconv.ParseInt(rawStart, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}, 0, false, ledger.ErrInvalidStart
	}
	hours, err = strconv.ParseInt(rawHours, 10, 64)
	if err != nil {
		return time.Time{}, 0, false, ledger.ErrInvalidDuration
	}
	return time.Unix(secs, 0).UTC(), hours, true, nil
}
