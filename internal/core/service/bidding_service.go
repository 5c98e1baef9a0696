package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

type biddingService struct {
	store     ports.RoomRepository
	registry  *RoomRegistry
	scheduler RoomScheduler
	clock     func() time.Time
	log       zerolog.Logger
}

// NewBiddingService returns the BiddingService backed by the actor registry.
func NewBiddingService(
	store ports.RoomRepository,
	registry *RoomRegistry,
	scheduler RoomScheduler,
	clock func() time.Time,
	log zerolog.Logger,
) ports.BiddingService {
	if clock == nil {
		clock = time.Now
	}
	return &biddingService{
		store:     store,
		registry:  registry,
		scheduler: scheduler,
		clock:     clock,
		log:       log,
	}
}

// CreateRoom stores a new active room and arms its deadline.
func (s *biddingService) CreateRoom(ctx context.Context, in ports.CreateRoomInput) (*domain.AuctionRoom, error) {
	title := strings.TrimSpace(in.Title)
	switch {
	case in.SellerID == "":
		return nil, fmt.Errorf("%w: seller is required", domain.ErrInvalidRoom)
	case title == "":
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidRoom)
	case in.StartingPrice.IsNegative():
		return nil, fmt.Errorf("%w: starting price must not be negative", domain.ErrInvalidRoom)
	case !in.EndTime.After(s.clock()):
		return nil, fmt.Errorf("%w: end time must be in the future", domain.ErrInvalidRoom)
	}
	if err := domain.ValidateAmount(in.StartingPrice); err != nil {
		return nil, fmt.Errorf("%w: starting price: %w", domain.ErrInvalidRoom, err)
	}

	now := s.clock().UTC().Truncate(time.Millisecond)
	room := &domain.AuctionRoom{
		ID:            uuid.NewString(),
		SellerID:      in.SellerID,
		Title:         title,
		Description:   in.Description,
		Category:      in.Category,
		Tags:          domain.NormalizeTags(in.Tags),
		StartingPrice: in.StartingPrice,
		CurrentPrice:  in.StartingPrice,
		EndTime:       in.EndTime.UTC().Truncate(time.Millisecond),
		Status:        domain.RoomStatusActive,
		Bids:          []domain.Bid{},
		CreatedAt:     now,
	}
	if err := s.store.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if s.scheduler != nil {
		s.scheduler.Schedule(room.Clone())
	}

	s.log.Info().
		Str("room_id", room.ID).
		Str("seller_id", room.SellerID).
		Time("end_time", room.EndTime).
		Msg("room created")
	return room, nil
}

// PlaceBid validates the command shape and hands it to the room actor.
// Business rules (price, seller, deadline) are decided by the actor alone.
func (s *biddingService) PlaceBid(ctx context.Context, in ports.PlaceBidInput) (*ports.BidResult, error) {
	switch {
	case in.RoomID == "":
		return nil, fmt.Errorf("%w: room id is required", domain.ErrInvalidBid)
	case in.BidderID == "":
		return nil, fmt.Errorf("%w: bidder id is required", domain.ErrInvalidBid)
	case !in.Amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidBid)
	}
	if err := domain.ValidateAmount(in.Amount); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidBid, err)
	}
	return s.registry.PlaceBid(ctx, in)
}

func (s *biddingService) GetRoomState(ctx context.Context, roomID string) (*domain.AuctionRoom, error) {
	return s.registry.Snapshot(ctx, roomID)
}

func (s *biddingService) UpdateRoom(ctx context.Context, in ports.UpdateRoomInput) (*domain.AuctionRoom, error) {
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	room, err := s.registry.Update(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("room_id", in.RoomID).Str("actor_id", in.ActorID).Msg("room updated")
	return room, nil
}

func (s *biddingService) CancelRoom(ctx context.Context, in ports.CancelRoomInput) (*domain.RoomEnded, error) {
	ended, err := s.registry.Cancel(ctx, in)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("room_id", in.RoomID).Str("actor_id", in.ActorID).Msg("room cancelled")
	return ended, nil
}
