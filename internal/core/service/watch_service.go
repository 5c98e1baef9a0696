package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

type watchService struct {
	watches ports.WatchRepository
	rooms   ports.RoomRepository
	clock   func() time.Time
	log     zerolog.Logger
}

// NewWatchService returns a WatchService implementation.
func NewWatchService(watches ports.WatchRepository, rooms ports.RoomRepository, clock func() time.Time, log zerolog.Logger) ports.WatchService {
	if clock == nil {
		clock = time.Now
	}
	return &watchService{watches: watches, rooms: rooms, clock: clock, log: log}
}

// Watch creates or replaces the caller's preferences for a room. Ended rooms
// can still be watched; they simply produce no further notifications.
func (s *watchService) Watch(ctx context.Context, in ports.WatchInput) (*domain.WatchSubscription, error) {
	if _, err := s.rooms.FindByID(ctx, in.RoomID); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &domain.WatchSubscription{
		UserID:         in.UserID,
		RoomID:         in.RoomID,
		NotifyOnOutbid: in.NotifyOnOutbid,
		NotifyOnEnding: in.NotifyOnEnding,
		AddedAt:        s.clock().UTC().Truncate(time.Millisecond),
	}
	if err := s.watches.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	s.log.Debug().Str("user_id", in.UserID).Str("room_id", in.RoomID).Msg("room watched")
	return w, nil
}

func (s *watchService) Unwatch(ctx context.Context, userID, roomID string) error {
	if err := s.watches.Delete(ctx, userID, roomID); err != nil {
		return fmt.Errorf("unwatch: %w", err)
	}
	return nil
}

func (s *watchService) ListWatches(ctx context.Context, userID string) ([]*domain.WatchSubscription, error) {
	ws, err := s.watches.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	return ws, nil
}
