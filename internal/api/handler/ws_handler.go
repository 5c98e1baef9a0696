package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/infrastructure/ws"
)

// RoomSubscriptions is the live-subscription side of the broadcaster.
type RoomSubscriptions interface {
	Subscribe(roomID, connectionID string)
	Unsubscribe(roomID, connectionID string)
	UnsubscribeAll(connectionID string)
}

// ConnectionHub owns the registered websocket clients.
type ConnectionHub interface {
	Register(c *ws.Client)
	Unregister(c *ws.Client)
	Push(connectionID string, msg ports.OutboundMessage) error
}

// RoomReader loads the snapshot sent on subscribe.
type RoomReader interface {
	GetRoomState(ctx context.Context, roomID string) (*domain.AuctionRoom, error)
}

// WSHandler upgrades authenticated requests to websocket connections and
// serves subscribe/unsubscribe frames.
type WSHandler struct {
	hub      ConnectionHub
	subs     RoomSubscriptions
	rooms    RoomReader
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(hub ConnectionHub, subs RoomSubscriptions, rooms RoomReader, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:   hub,
		subs:  subs,
		rooms: rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Access is gated by the JWT, not the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Connect handles GET /v1/ws.
//
// After subscribing, the client receives a "subscribed" frame carrying the
// room snapshot and its version as seq. Room events with seq at or below
// that version are already reflected in the snapshot and can be skipped.
//
// @Summary      Open a live connection
// @Tags         live
// @Security     BearerAuth
// @Param        token  query  string  false  "JWT when the Authorization header cannot be set"
// @Success      101
// @Failure      401  {object}  errorResponse
// @Router       /v1/ws [get]
func (h *WSHandler) Connect(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.log.Debug().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return nil
	}

	client := ws.NewClient(conn, userID, 0)
	h.hub.Register(client)
	go client.WritePump()
	defer func() {
		h.subs.UnsubscribeAll(client.ID)
		h.hub.Unregister(client)
	}()

	ctx := c.Request().Context()
	if err := client.ReadPump(func(msg ws.InboundMessage) { h.onMessage(ctx, client, msg) }); err != nil {
		h.log.Debug().Err(err).Str("connection_id", client.ID).Msg("websocket closed unexpectedly")
	}
	return nil
}

func (h *WSHandler) onMessage(ctx context.Context, client *ws.Client, msg ws.InboundMessage) {
	if msg.RoomID == "" && (msg.Type == ws.InboundSubscribe || msg.Type == ws.InboundUnsubscribe) {
		h.pushError(client.ID, "", "room_id is required")
		return
	}

	switch msg.Type {
	case ws.InboundSubscribe:
		// Subscribe before reading the snapshot so no event falls in between.
		h.subs.Subscribe(msg.RoomID, client.ID)
		room, err := h.rooms.GetRoomState(ctx, msg.RoomID)
		if err != nil {
			h.subs.Unsubscribe(msg.RoomID, client.ID)
			if errors.Is(err, domain.ErrRoomNotFound) {
				h.pushError(client.ID, msg.RoomID, "room not found")
			} else {
				h.log.Error().Err(err).Str("room_id", msg.RoomID).Msg("load room for subscribe failed")
				h.pushError(client.ID, msg.RoomID, "room temporarily unavailable")
			}
			return
		}
		h.push(client.ID, ports.OutboundMessage{
			Type:    ports.MessageSubscribed,
			RoomID:  room.ID,
			Seq:     room.Version,
			Payload: toRoomResponse(room),
		})

	case ws.InboundUnsubscribe:
		h.subs.Unsubscribe(msg.RoomID, client.ID)
		h.push(client.ID, ports.OutboundMessage{Type: ports.MessageUnsubscribed, RoomID: msg.RoomID})

	default:
		h.pushError(client.ID, msg.RoomID, "unknown message type")
	}
}

func (h *WSHandler) pushError(connID, roomID, reason string) {
	h.push(connID, ports.OutboundMessage{
		Type:    ports.MessageError,
		RoomID:  roomID,
		Payload: map[string]string{"error": reason},
	})
}

func (h *WSHandler) push(connID string, msg ports.OutboundMessage) {
	if err := h.hub.Push(connID, msg); err != nil {
		h.log.Debug().Err(err).Str("connection_id", connID).Str("type", msg.Type).Msg("push to connection failed")
	}
}
