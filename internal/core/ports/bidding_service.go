package ports

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// PlaceBidInput is the DTO passed from the transport layer to the engine.
type PlaceBidInput struct {
	RoomID    string
	BidderID  string
	Amount    decimal.Decimal
	CommandID string
}

// BidResult is returned for an accepted bid. Replays of an already-applied
// command id return the original result with Replayed set.
type BidResult struct {
	BidID              string
	RoomID             string
	BidderID           string
	NewPrice           decimal.Decimal
	PreviousHighBidder string
	AcceptedAt         time.Time
	Replayed           bool
}

// CreateRoomInput carries what a seller supplies when listing an item.
type CreateRoomInput struct {
	SellerID      string
	Title         string
	Description   string
	Category      string
	Tags          []string
	StartingPrice decimal.Decimal
	EndTime       time.Time
}

// UpdateRoomInput carries seller/admin edits. Nil fields are left unchanged.
type UpdateRoomInput struct {
	RoomID      string
	ActorID     string
	ActorRole   string
	Title       *string
	Description *string
	Category    *string
	Tags        []string
	EndTime     *time.Time
}

// CancelRoomInput asks the room actor to end a room administratively.
type CancelRoomInput struct {
	RoomID    string
	ActorID   string
	ActorRole string
}

// BiddingService is the engine surface exposed to collaborators.
type BiddingService interface {
	CreateRoom(ctx context.Context, input CreateRoomInput) (*domain.AuctionRoom, error)
	PlaceBid(ctx context.Context, input PlaceBidInput) (*BidResult, error)
	GetRoomState(ctx context.Context, roomID string) (*domain.AuctionRoom, error)
	UpdateRoom(ctx context.Context, input UpdateRoomInput) (*domain.AuctionRoom, error)
	CancelRoom(ctx context.Context, input CancelRoomInput) (*domain.RoomEnded, error)
}
