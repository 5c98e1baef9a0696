package ports

import (
	"context"
	"time"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// RoomRepository is the durable Room Store. Every mutating method is atomic
// per room and conditional on expectedVersion: a write made against a stale
// version fails with domain.ErrVersionConflict and changes nothing.
type RoomRepository interface {
	Create(ctx context.Context, room *domain.AuctionRoom) error
	FindByID(ctx context.Context, roomID string) (*domain.AuctionRoom, error)

	// AppendBid sets current_price to bid.Amount and appends bid in one write.
	AppendBid(ctx context.Context, roomID string, bid domain.Bid, expectedVersion int64) error

	// MarkEnded records the terminal state of a room.
	MarkEnded(ctx context.Context, roomID string, winnerID string, endedAt time.Time, reason domain.EndReason, expectedVersion int64) error

	// UpdateDetails rewrites the seller-editable fields (title, description,
	// category, tags, end_time).
	UpdateDetails(ctx context.Context, room *domain.AuctionRoom, expectedVersion int64) error

	// ListActive returns every room whose status is still active.
	ListActive(ctx context.Context) ([]*domain.AuctionRoom, error)

	// ListEndedBefore returns ids of rooms that ended before cutoff.
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)

	Delete(ctx context.Context, roomID string) error
}
