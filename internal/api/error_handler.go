package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// errorResponse is the canonical error envelope for all API errors.
// CurrentPrice is only set for bid rejections.
type errorResponse struct {
	Error        string `json:"error"`
	CurrentPrice string `json:"current_price,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Maps known domain errors to their appropriate HTTP status codes.
//   - Logs unexpected errors internally without leaking details to the client.
//   - Renders a consistent JSON envelope: {"error": "<message>"}.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code, body := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, errorResponse) {
	// Echo's own errors (bind failures, 404 from router, etc.)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, errorResponse{Error: fmt.Sprintf("%v", he.Message)}
	}

	var rejected *domain.BidRejectedError
	if errors.As(err, &rejected) {
		code := http.StatusConflict
		if errors.Is(rejected.Reason, domain.ErrSelfBid) {
			code = http.StatusForbidden
		}
		return code, errorResponse{Error: rejected.Reason.Error(), CurrentPrice: rejected.CurrentPrice.String()}
	}

	// Known domain errors → deterministic HTTP codes.
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrWatchNotFound),
		errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidBid), errors.Is(err, domain.ErrInvalidRoom), errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrSelfBid):
		return http.StatusForbidden, errorResponse{Error: "access forbidden"}
	case errors.Is(err, domain.ErrRoomHasBids),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrRoomStillOpen),
		errors.Is(err, domain.ErrBidTooLow),
		errors.Is(err, domain.ErrUserExists):
		return http.StatusConflict, errorResponse{Error: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorResponse{Error: "invalid credentials"}
	case errors.Is(err, domain.ErrPersistence),
		errors.Is(err, domain.ErrActorUnavailable),
		errors.Is(err, domain.ErrVersionConflict):
		log.Warn().Err(err).Str("path", c.Path()).Msg("engine temporarily unavailable")
		c.Response().Header().Set("Retry-After", "1")
		return http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, retry with the same command_id"}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, errorResponse{Error: "request timed out, outcome unknown; retry with the same command_id"}
	case errors.Is(err, context.Canceled):
		return 499, errorResponse{Error: "request cancelled"}
	}

	// Unexpected error: log the real cause, return a generic message.
	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")

	return http.StatusInternalServerError, errorResponse{Error: "internal server error"}
}
