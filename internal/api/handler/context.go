package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bidhall/auction-engine/internal/api/middleware"
)

// ctxIdentity extracts the caller injected by the Auth middleware. Both
// values must be present; their absence means the route was mounted without
// Auth.
func ctxIdentity(c echo.Context) (userID, role string, err error) {
	userID, _ = c.Get(middleware.ContextUserID).(string)
	role, _ = c.Get(middleware.ContextRole).(string)
	if userID == "" || role == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return userID, role, nil
}

// bindAndValidate decodes the body into req and runs struct validation.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return nil
}
