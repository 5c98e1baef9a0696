package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// EngineStats exposes the in-memory counters reported to operators.
type EngineStats interface {
	ActiveActors() int
	PendingTimers() int
	LiveConnections() int
}

type AdminHandler struct {
	stats EngineStats
}

func NewAdminHandler(stats EngineStats) *AdminHandler {
	return &AdminHandler{stats: stats}
}

type statsResponse struct {
	ActiveActors    int `json:"active_actors"`
	PendingTimers   int `json:"pending_timers"`
	LiveConnections int `json:"live_connections"`
}

// Stats handles GET /v1/admin/stats.
//
// @Summary      Engine runtime counters
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  statsResponse
// @Failure      403  {object}  errorResponse
// @Router       /v1/admin/stats [get]
func (h *AdminHandler) Stats(c echo.Context) error {
	return c.JSON(http.StatusOK, statsResponse{
		ActiveActors:    h.stats.ActiveActors(),
		PendingTimers:   h.stats.PendingTimers(),
		LiveConnections: h.stats.LiveConnections(),
	})
}
