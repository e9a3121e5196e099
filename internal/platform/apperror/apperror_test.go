package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorsIs_MatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("add line item: %w", InvalidState("order %s is %s", "o-1", "Received"))

	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Equal(t, "add line item: order o-1 is Received", err.Error())
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("medication", 42)
	assert.Equal(t, "medication 42 not found", err.Error())
	assert.True(t, IsNotFound(err))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("order", 1), http.StatusNotFound},
		{InvalidArgument("bad"), http.StatusBadRequest},
		{InvalidState("bad"), http.StatusConflict},
		{Conflict("dup"), http.StatusConflict},
		{echo.NewHTTPError(http.StatusUnauthorized, "no"), http.StatusUnauthorized},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestHTTPErrorHandler_HidesInternalErrors(t *testing.T) {
	e := echo.New()
	h := HTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medications", nil)
	rec := httptest.NewRecorder()
	h(errors.New("pq: connection refused"), e.NewContext(req, rec))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Detail)
}

func TestHTTPErrorHandler_ClassifiedMessage(t *testing.T) {
	e := echo.New()
	h := HTTPErrorHandler(zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/1/items", nil)
	rec := httptest.NewRecorder()
	h(InvalidState("order is Cancelled"), e.NewContext(req, rec))

	require.Equal(t, http.StatusConflict, rec.Code)
	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "order is Cancelled", body.Detail)
}
