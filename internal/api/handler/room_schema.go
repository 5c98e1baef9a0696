package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

type createRoomRequest struct {
	Title         string          `json:"title"          validate:"required,max=200"`
	Description   string          `json:"description"    validate:"max=5000"`
	Category      string          `json:"category"       validate:"max=100"`
	Tags          []string        `json:"tags"           validate:"max=20,dive,max=50"`
	StartingPrice decimal.Decimal `json:"starting_price" swaggertype:"string" example:"100.00"`
	EndTime       time.Time       `json:"end_time"       validate:"required"`
}

type updateRoomRequest struct {
	Title       *string    `json:"title"       validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Category    *string    `json:"category"    validate:"omitempty,max=100"`
	Tags        []string   `json:"tags"        validate:"omitempty,max=20,dive,max=50"`
	EndTime     *time.Time `json:"end_time"`
}

type placeBidRequest struct {
	Amount    decimal.Decimal `json:"amount"     swaggertype:"string" example:"150.00"`
	CommandID string          `json:"command_id" validate:"max=128"`
}

type watchRequest struct {
	NotifyOnOutbid *bool `json:"notify_on_outbid"`
	NotifyOnEnding *bool `json:"notify_on_ending"`
}

type bidResponse struct {
	ID         string    `json:"id"`
	BidderID   string    `json:"bidder_id"`
	Amount     string    `json:"amount"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type roomLinks struct {
	Self string `json:"self"`
	Bids string `json:"bids"`
}

type roomResponse struct {
	ID              string        `json:"id"`
	SellerID        string        `json:"seller_id"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	Category        string        `json:"category"`
	Tags            []string      `json:"tags"`
	StartingPrice   string        `json:"starting_price"`
	CurrentPrice    string        `json:"current_price"`
	HighestBidderID string        `json:"highest_bidder_id,omitempty"`
	EndTime         time.Time     `json:"end_time"`
	Status          string        `json:"status"`
	WinnerID        string        `json:"winner_id,omitempty"`
	EndReason       string        `json:"end_reason,omitempty"`
	EndedAt         *time.Time    `json:"ended_at,omitempty"`
	Version         int64         `json:"version"`
	Bids            []bidResponse `json:"bids"`
	CreatedAt       time.Time     `json:"created_at"`
	Links           roomLinks     `json:"_links"`
}

type placeBidResponse struct {
	BidID              string    `json:"bid_id"`
	RoomID             string    `json:"room_id"`
	BidderID           string    `json:"bidder_id"`
	NewPrice           string    `json:"new_price"`
	PreviousHighBidder string    `json:"previous_high_bidder,omitempty"`
	AcceptedAt         time.Time `json:"accepted_at"`
	Replayed           bool      `json:"replayed"`
}

type roomEndedResponse struct {
	RoomID     string    `json:"room_id"`
	WinnerID   string    `json:"winner_id,omitempty"`
	FinalPrice string    `json:"final_price"`
	Reason     string    `json:"reason"`
	EndedAt    time.Time `json:"ended_at"`
	TotalBids  int       `json:"total_bids"`
}

type notificationListResponse struct {
	Items       []*domain.Notification `json:"items"`
	UnreadCount int64                  `json:"unread_count"`
}

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// errorResponse documents the envelope rendered by the API error handler.
type errorResponse struct {
	Error        string `json:"error"`
	CurrentPrice string `json:"current_price,omitempty"`
}
