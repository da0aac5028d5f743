package ledger_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duel/internal/pkg/common"
	"github.com/vreid/duel/internal/pkg/ledger"
)

func newLedgerServer(t *testing.T) (*echo.Echo, *ledger.Ledger) {
	t.Helper()

	l := ledger.New(6)
	require.NoError(t, l.Mint("deployer", 10000000))

	e := echo.New()
	(&ledger.LedgerService{Ledger: l}).Routes(e)

	return e, l
}

func transfer(e *echo.Echo, from, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/ledger/transfer", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	if len(from) > 0 {
		req.Header.Set(common.AccountHeader, from)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func TestPostTransfer(t *testing.T) {
	t.Parallel()

	e, l := newLedgerServer(t)

	rec := transfer(e, "deployer", `{"to":"bettor","amount":5000000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var balance ledger.Balance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.Equal(t, ledger.Balance{Account: "deployer", Amount: 5000000, Display: "5.000000"}, balance)
	assert.Equal(t, uint64(5000000), l.BalanceOf("bettor"))
}

func TestPostTransferErrors(t *testing.T) {
	t.Parallel()

	e, _ := newLedgerServer(t)

	assert.Equal(t, http.StatusUnauthorized, transfer(e, "", `{"to":"bettor","amount":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, transfer(e, "deployer", `{"amount":1}`).Code)
	assert.Equal(t, http.StatusPaymentRequired, transfer(e, "bettor", `{"to":"deployer","amount":1}`).Code)
}

func TestGetBalance(t *testing.T) {
	t.Parallel()

	e, _ := newLedgerServer(t)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ledger/balances/deployer", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account":"deployer","amount":10000000,"display":"10.000000"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ledger/balances", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"account":"deployer","amount":10000000,"display":"10.000000"}]`, rec.Body.String())
}
