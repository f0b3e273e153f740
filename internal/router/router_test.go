package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-ledger/internal/handler"
	"github.com/iliyamo/parking-ledger/internal/ledger"
	"github.com/iliyamo/parking-ledger/internal/model"
	"github.com/iliyamo/parking-ledger/internal/utils"
)

const (
	secret = "router-secret"
	owner  = "0x00000000000000000000000000000000000000aa"
	alice  = "0x00000000000000000000000000000000000000a1"
)

func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	log, _ := test.NewNullLogger()
	l := ledger.New(owner, ledger.WithLogger(log))
	h := handler.NewLedgerHandler(l, log)

	e := echo.New()
	RegisterRoutes(e, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	}))
	RegisterPublic(e, h, nil)
	RegisterOwner(e, h, secret)
	RegisterCustomer(e, h, secret)
	return e
}

func call(t *testing.T, e *echo.Echo, method, target, sub, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if sub != "" {
		tok, err := utils.NewAccessToken(secret, sub, role, 5)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestOperationalRoutes(t *testing.T) {
	e := newServer(t)
	assert.Equal(t, "ok", call(t, e, http.MethodGet, "/healthz", "", "", "").Body.String())
	assert.Equal(t, "# metrics", call(t, e, http.MethodGet, "/metrics", "", "", "").Body.String())
}

func TestRoleGates(t *testing.T) {
	e := newServer(t)
	body := `{"name":"Downtown","base_hourly_rate":"5.99"}`

	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodPost, "/v1/locations", "", "", body).Code)
	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodPost, "/v1/locations", alice, model.RoleCustomer, body).Code)
	// an OWNER role claim is not enough without the owner address
	assert.Equal(t, http.StatusForbidden, call(t, e, http.MethodPost, "/v1/locations", alice, model.RoleOwner, body).Code)
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/locations", owner, model.RoleOwner, body).Code)

	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/v1/locations/1", "", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(t, e, http.MethodGet, "/v1/wallet", "", "", "").Code)
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/v1/wallet", alice, model.RoleCustomer, "").Code)
}

func TestAvailableRouteBeatsSpotParam(t *testing.T) {
	e := newServer(t)
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/locations", owner, model.RoleOwner, `{"name":"D","base_hourly_rate":"1"}`).Code)
	require.Equal(t, http.StatusCreated, call(t, e, http.MethodPost, "/v1/locations/1/spots", owner, model.RoleOwner, `{"spot_id":"A1"}`).Code)

	rec := call(t, e, http.MethodGet, "/v1/locations/1/spots/available", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"spot_ids":["A1"]`)
}
