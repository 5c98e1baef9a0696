package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

// WatchHandler manages watch subscriptions and the notification center.
type WatchHandler struct {
	watches       ports.WatchService
	notifications ports.NotificationService
}

func NewWatchHandler(watches ports.WatchService, notifications ports.NotificationService) *WatchHandler {
	return &WatchHandler{watches: watches, notifications: notifications}
}

// Watch handles PUT /v1/rooms/:room_id/watch. Omitted preferences default to true.
//
// @Summary      Watch a room
// @Tags         watches
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        room_id  path      string        true   "Room id"
// @Param        body     body      watchRequest  false  "Notification preferences"
// @Success      200      {object}  domain.WatchSubscription
// @Failure      404      {object}  errorResponse
// @Router       /v1/rooms/{room_id}/watch [put]
func (h *WatchHandler) Watch(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	var req watchRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
		}
	}

	w, err := h.watches.Watch(c.Request().Context(), ports.WatchInput{
		UserID:         userID,
		RoomID:         c.Param("room_id"),
		NotifyOnOutbid: boolOr(req.NotifyOnOutbid, true),
		NotifyOnEnding: boolOr(req.NotifyOnEnding, true),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w)
}

// Unwatch handles DELETE /v1/rooms/:room_id/watch.
//
// @Summary      Stop watching a room
// @Tags         watches
// @Security     BearerAuth
// @Param        room_id  path  string  true  "Room id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/rooms/{room_id}/watch [delete]
func (h *WatchHandler) Unwatch(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.watches.Unwatch(c.Request().Context(), userID, c.Param("room_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListWatches handles GET /v1/watches.
//
// @Summary      List watched rooms
// @Tags         watches
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  domain.WatchSubscription
// @Router       /v1/watches [get]
func (h *WatchHandler) ListWatches(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	list, err := h.watches.ListWatches(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if list == nil {
		list = []*domain.WatchSubscription{}
	}
	return c.JSON(http.StatusOK, list)
}

// ListNotifications handles GET /v1/notifications.
//
// @Summary      List notifications, newest first
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Param        unread_only  query     bool  false  "Only unread notifications"
// @Param        limit        query     int   false  "Page size (max 200)"
// @Success      200          {object}  notificationListResponse
// @Failure      400          {object}  errorResponse
// @Router       /v1/notifications [get]
func (h *WatchHandler) ListNotifications(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	var filter ports.NotificationFilter
	if v := c.QueryParam("unread_only"); v != "" {
		if filter.UnreadOnly, err = strconv.ParseBool(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "unread_only must be a boolean")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	res, err := h.notifications.ListNotifications(c.Request().Context(), userID, filter)
	if err != nil {
		return err
	}
	items := res.Items
	if items == nil {
		items = []*domain.Notification{}
	}
	return c.JSON(http.StatusOK, notificationListResponse{Items: items, UnreadCount: res.UnreadCount})
}

// MarkRead handles POST /v1/notifications/:notification_id/read.
//
// @Summary      Mark a notification as read
// @Tags         notifications
// @Security     BearerAuth
// @Param        notification_id  path  string  true  "Notification id"
// @Success      204
// @Failure      404  {object}  errorResponse
// @Router       /v1/notifications/{notification_id}/read [post]
func (h *WatchHandler) MarkRead(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	if err := h.notifications.MarkRead(c.Request().Context(), userID, c.Param("notification_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead handles POST /v1/notifications/read-all.
//
// @Summary      Mark every notification as read
// @Tags         notifications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  markAllReadResponse
// @Router       /v1/notifications/read-all [post]
func (h *WatchHandler) MarkAllRead(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	n, err := h.notifications.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, markAllReadResponse{Updated: n})
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
