package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bidhall/auction-engine/internal/core/ports"
)

// RoomHandler serves room lifecycle and bidding requests.
type RoomHandler struct {
	service ports.BiddingService
}

func NewRoomHandler(service ports.BiddingService) *RoomHandler {
	return &RoomHandler{service: service}
}

// Create handles POST /v1/rooms.
//
// @Summary      Create an auction room
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createRoomRequest  true  "Room details"
// @Success      201   {object}  roomResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/rooms [post]
func (h *RoomHandler) Create(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	var req createRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	room, err := h.service.CreateRoom(c.Request().Context(), ports.CreateRoomInput{
		SellerID:      userID,
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Tags:          req.Tags,
		StartingPrice: req.StartingPrice,
		EndTime:       req.EndTime,
	})
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderLocation, "/v1/rooms/"+room.ID)
	return c.JSON(http.StatusCreated, toRoomResponse(room))
}

// Get handles GET /v1/rooms/:room_id.
//
// @Summary      Get the current state of a room
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        room_id  path      string  true  "Room id"
// @Success      200      {object}  roomResponse
// @Failure      404      {object}  errorResponse
// @Router       /v1/rooms/{room_id} [get]
func (h *RoomHandler) Get(c echo.Context) error {
	room, err := h.service.GetRoomState(c.Request().Context(), c.Param("room_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRoomResponse(room))
}

// Update handles PATCH /v1/rooms/:room_id.
//
// @Summary      Edit a room
// @Description  Only the seller or an admin may edit. end_time can only change before the first bid.
// @Tags         rooms
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        room_id  path      string             true  "Room id"
// @Param        body     body      updateRoomRequest  true  "Fields to change"
// @Success      200      {object}  roomResponse
// @Failure      403      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      409      {object}  errorResponse
// @Router       /v1/rooms/{room_id} [patch]
func (h *RoomHandler) Update(c echo.Context) error {
	userID, role, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	var req updateRoomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	room, err := h.service.UpdateRoom(c.Request().Context(), toUpdateInput(c.Param("room_id"), userID, role, req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRoomResponse(room))
}

// Cancel handles POST /v1/rooms/:room_id/cancel.
//
// @Summary      Cancel a room
// @Description  Admins may cancel any active room; sellers only before the first bid. Nobody wins.
// @Tags         rooms
// @Produce      json
// @Security     BearerAuth
// @Param        room_id  path      string  true  "Room id"
// @Success      200      {object}  roomEndedResponse
// @Failure      403      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      409      {object}  errorResponse
// @Router       /v1/rooms/{room_id}/cancel [post]
func (h *RoomHandler) Cancel(c echo.Context) error {
	userID, role, err := ctxIdentity(c)
	if err != nil {
		return err
	}

	ended, err := h.service.CancelRoom(c.Request().Context(), ports.CancelRoomInput{
		RoomID:    c.Param("room_id"),
		ActorID:   userID,
		ActorRole: role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toRoomEndedResponse(ended))
}

// PlaceBid handles POST /v1/rooms/:room_id/bids.
//
// The command id makes retries safe: it is read from the body, falling back
// to the Idempotency-Key header. A replay answers 200 with the original result.
//
// @Summary      Place a bid
// @Tags         bids
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        room_id          path      string           true   "Room id"
// @Param        Idempotency-Key  header    string           false  "Command id when not sent in the body"
// @Param        body             body      placeBidRequest  true   "Bid"
// @Success      201              {object}  placeBidResponse
// @Success      200              {object}  placeBidResponse
// @Failure      403              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Failure      503              {object}  errorResponse
// @Router       /v1/rooms/{room_id}/bids [post]
func (h *RoomHandler) PlaceBid(c echo.Context) error {
	userID, _, err := ctxIdentity(c)
	if err != nil {
		return err
	}
	var req placeBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	commandID := strings.TrimSpace(req.CommandID)
	if commandID == "" {
		commandID = strings.TrimSpace(c.Request().Header.Get("Idempotency-Key"))
	}

	res, err := h.service.PlaceBid(c.Request().Context(), ports.PlaceBidInput{
		RoomID:    c.Param("room_id"),
		BidderID:  userID,
		Amount:    req.Amount,
		CommandID: commandID,
	})
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, toPlaceBidResponse(res))
}
