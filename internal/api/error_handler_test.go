package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

func TestHTTPErrorHandler_Mapping(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		code  int
		price string
	}{
		{"bid too low", &domain.BidRejectedError{Reason: domain.ErrBidTooLow, CurrentPrice: decimal.RequireFromString("150")}, http.StatusConflict, "150"},
		{"self bid", &domain.BidRejectedError{Reason: domain.ErrSelfBid, CurrentPrice: decimal.RequireFromString("100")}, http.StatusForbidden, "100"},
		{"auction ended", &domain.BidRejectedError{Reason: domain.ErrAuctionEnded, CurrentPrice: decimal.RequireFromString("160")}, http.StatusConflict, "160"},
		{"room not found", fmt.Errorf("load: %w", domain.ErrRoomNotFound), http.StatusNotFound, ""},
		{"invalid bid", fmt.Errorf("%w: amount must be positive", domain.ErrInvalidBid), http.StatusUnprocessableEntity, ""},
		{"invalid amount", fmt.Errorf("place bid: %w: %w", domain.ErrInvalidBid, domain.ErrInvalidAmount), http.StatusUnprocessableEntity, ""},
		{"has bids", domain.ErrRoomHasBids, http.StatusConflict, ""},
		{"forbidden", domain.ErrForbidden, http.StatusForbidden, ""},
		{"persistence", fmt.Errorf("append bid room r1: %w: %w", domain.ErrPersistence, errors.New("timeout")), http.StatusServiceUnavailable, ""},
		{"actor unavailable", domain.ErrActorUnavailable, http.StatusServiceUnavailable, ""},
		{"deadline", fmt.Errorf("outcome unknown: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ""},
		{"credentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, ""},
		{"echo error", echo.NewHTTPError(http.StatusBadRequest, "invalid payload"), http.StatusBadRequest, ""},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	handle := NewHTTPErrorHandler(zerolog.Nop())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)

			handle(tc.err, c)

			require.Equal(t, tc.code, rec.Code)
			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body.Error)
			require.Equal(t, tc.price, body.CurrentPrice)
		})
	}
}

func TestHTTPErrorHandler_HidesInternalDetails(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	NewHTTPErrorHandler(zerolog.Nop())(errors.New("mongo: connection refused at 10.0.0.7"), c)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "10.0.0.7")
}
