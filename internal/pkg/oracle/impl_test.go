package oracle_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vreid/duel/internal/pkg/oracle"
)

func newMockServer(t *testing.T) (*echo.Echo, *oracle.MockCoordinator) {
	t.Helper()

	e := echo.New()
	mock := oracle.NewMockCoordinator()
	oracle.ForMock(mock).Routes(e)

	return e, mock
}

func TestMockRoutes(t *testing.T) {
	t.Parallel()

	e, mock := newMockServer(t)

	var got []uint64

	mock.OnFulfilled(func(_ context.Context, _ oracle.CorrelationID, words []uint64) error {
		got = words

		return nil
	})

	_, _ = mock.RequestRandomness(context.Background(), oracle.Request{})
	_, _ = mock.RequestRandomness(context.Background(), oracle.Request{})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/oracle/mock/pending", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["1","2"]`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/oracle/mock/fulfill/2", strings.NewReader(`{"random_words":[11]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []uint64{11}, got)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/oracle/mock/fulfill/1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, oracle.DeriveWords("1", 1), got)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/oracle/mock/fulfill/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoteFulfillRoute(t *testing.T) {
	t.Parallel()

	e := echo.New()
	remote := oracle.NewRemoteCoordinator("http://127.0.0.1:0", "", "secret", time.Second)
	oracle.ForRemote(remote).Routes(e)

	calls := 0

	remote.OnFulfilled(func(context.Context, oracle.CorrelationID, []uint64) error {
		calls++

		return nil
	})

	body, err := json.Marshal(oracle.Fulfillment{RequestID: "r-1", RandomWords: []uint64{1}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/oracle/fulfill", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/oracle/fulfill", strings.NewReader(string(body)))
	req.Header.Set(oracle.SignatureHeader, oracle.Sign([]byte("secret"), body))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, calls)

	req = httptest.NewRequest(http.MethodPost, "/api/oracle/fulfill", strings.NewReader(`{}`))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
