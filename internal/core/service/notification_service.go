package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

// NotificationService turns engine events into persisted notifications and
// serves the notification center. Each side effect is keyed in the dedup
// store, so a redelivered event never notifies a user twice.
type NotificationService struct {
	repo    ports.NotificationRepository
	watches ports.WatchRepository
	dedup   ports.DedupChecker
	gateway ports.ConnectionGateway
	clock   func() time.Time
	log     zerolog.Logger
}

func NewNotificationService(
	repo ports.NotificationRepository,
	watches ports.WatchRepository,
	dedup ports.DedupChecker,
	gateway ports.ConnectionGateway,
	clock func() time.Time,
	log zerolog.Logger,
) *NotificationService {
	if clock == nil {
		clock = time.Now
	}
	return &NotificationService{
		repo:    repo,
		watches: watches,
		dedup:   dedup,
		gateway: gateway,
		clock:   clock,
		log:     log,
	}
}

// HandleEvent is the notification dispatcher entry point on the event pipeline.
func (s *NotificationService) HandleEvent(ctx context.Context, ev domain.Event) error {
	switch ev.Type {
	case domain.EventBidAccepted:
		if ev.BidAccepted != nil {
			return s.onBidAccepted(ctx, ev.BidAccepted)
		}
	case domain.EventRoomEnded:
		if ev.RoomEnded != nil {
			return s.onRoomEnded(ctx, ev.RoomEnded)
		}
	case domain.EventEndingSoon:
		if ev.EndingSoon != nil {
			return s.onEndingSoon(ctx, ev.EndingSoon)
		}
	}
	return nil
}

func (s *NotificationService) onBidAccepted(ctx context.Context, b *domain.BidAccepted) error {
	var errs []error

	// Bidding on a room watches it, unless the user already set preferences.
	_, err := s.watches.EnsureExists(ctx, &domain.WatchSubscription{
		UserID:         b.BidderID,
		RoomID:         b.RoomID,
		NotifyOnOutbid: true,
		NotifyOnEnding: true,
		AddedAt:        s.clock().UTC(),
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("auto-watch: %w", err))
	}

	notified := map[string]struct{}{b.BidderID: {}}
	if b.PreviousHighBidder != "" && b.PreviousHighBidder != b.BidderID {
		notified[b.PreviousHighBidder] = struct{}{}
		errs = append(errs, s.notify(ctx, b.BidID, &domain.Notification{
			RecipientID: b.PreviousHighBidder,
			Kind:        domain.NotificationOutbid,
			RoomID:      b.RoomID,
			Message:     fmt.Sprintf("You have been outbid on %q. The new price is %s.", b.Title, b.NewPrice.StringFixed(2)),
		}))
	}

	subs, err := s.watches.ListByRoom(ctx, b.RoomID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list watchers: %w", err))
		return errors.Join(errs...)
	}
	for _, w := range subs {
		if !w.NotifyOnOutbid {
			continue
		}
		if _, skip := notified[w.UserID]; skip {
			continue
		}
		notified[w.UserID] = struct{}{}
		errs = append(errs, s.notify(ctx, b.BidID, &domain.Notification{
			RecipientID: w.UserID,
			Kind:        domain.NotificationOutbid,
			RoomID:      b.RoomID,
			Message:     fmt.Sprintf("New high bid of %s on %q.", b.NewPrice.StringFixed(2), b.Title),
		}))
	}
	return errors.Join(errs...)
}

func (s *NotificationService) onRoomEnded(ctx context.Context, e *domain.RoomEnded) error {
	var errs []error
	if e.WinnerID != "" {
		errs = append(errs, s.notify(ctx, "final", &domain.Notification{
			RecipientID: e.WinnerID,
			Kind:        domain.NotificationWon,
			RoomID:      e.RoomID,
			Message:     fmt.Sprintf("You won %q for %s.", e.Title, e.FinalPrice.StringFixed(2)),
		}))
	}

	lost := fmt.Sprintf("The auction for %q ended. The winning bid was %s.", e.Title, e.FinalPrice.StringFixed(2))
	if e.Reason == domain.EndReasonCancelled {
		lost = fmt.Sprintf("The auction for %q was cancelled.", e.Title)
	}
	for _, bidder := range e.Bidders {
		if bidder == e.WinnerID {
			continue
		}
		errs = append(errs, s.notify(ctx, "final", &domain.Notification{
			RecipientID: bidder,
			Kind:        domain.NotificationLost,
			RoomID:      e.RoomID,
			Message:     lost,
		}))
	}
	return errors.Join(errs...)
}

func (s *NotificationService) onEndingSoon(ctx context.Context, e *domain.EndingSoon) error {
	subs, err := s.watches.ListByRoom(ctx, e.RoomID)
	if err != nil {
		return fmt.Errorf("list watchers: %w", err)
	}
	ref := fmt.Sprintf("%d", e.EndTime.UnixMilli())
	var errs []error
	for _, w := range subs {
		if !w.NotifyOnEnding {
			continue
		}
		errs = append(errs, s.notify(ctx, ref, &domain.Notification{
			RecipientID: w.UserID,
			Kind:        domain.NotificationEndingSoon,
			RoomID:      e.RoomID,
			Message:     fmt.Sprintf("%q ends at %s. Current price is %s.", e.Title, e.EndTime.UTC().Format(time.RFC3339), e.CurrentPrice.StringFixed(2)),
		}))
	}
	return errors.Join(errs...)
}

// notify persists n once per (kind, room, recipient, ref) and then pushes it
// to the recipient's live connections. Push failures are logged only.
func (s *NotificationService) notify(ctx context.Context, ref string, n *domain.Notification) error {
	key := fmt.Sprintf("notif:%s:%s:%s:%s", n.Kind, n.RoomID, n.RecipientID, ref)

	isDup, err := s.dedup.IsDuplicate(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dedup check failed, notifying anyway")
	} else if isDup {
		s.log.Debug().Str("key", key).Msg("duplicate notification skipped")
		return nil
	}

	n.ID = uuid.NewString()
	n.Link = domain.RoomLink(n.RoomID)
	n.IsRead = false
	n.CreatedAt = s.clock().UTC().Truncate(time.Millisecond)
	if err := s.repo.Insert(ctx, n); err != nil {
		return fmt.Errorf("insert %s notification for %s: %w", n.Kind, n.RecipientID, err)
	}
	if err := s.dedup.Mark(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to set dedup key")
	}
	metrics.NotificationsCreatedTotal.WithLabelValues(string(n.Kind)).Inc()

	s.push(n)
	return nil
}

func (s *NotificationService) push(n *domain.Notification) {
	if s.gateway == nil {
		return
	}
	msg := ports.OutboundMessage{Type: ports.MessageNotification, RoomID: n.RoomID, Payload: n}
	for _, conn := range s.gateway.ConnectionsForUser(n.RecipientID) {
		if err := s.gateway.Push(conn, msg); err != nil {
			metrics.LivePushFailuresTotal.Inc()
			s.log.Debug().Err(err).
				Str("recipient_id", n.RecipientID).
				Str("connection_id", conn).
				Msg("notification push failed")
		}
	}
}

// ListNotifications returns the newest notifications of userID plus the
// unread count.
func (s *NotificationService) ListNotifications(ctx context.Context, userID string, filter ports.NotificationFilter) (*ports.ListNotificationsResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultNotificationLimit
	}
	if filter.Limit > maxNotificationLimit {
		filter.Limit = maxNotificationLimit
	}

	items, err := s.repo.ListByRecipient(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return &ports.ListNotificationsResult{Items: items, UnreadCount: unread}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.repo.MarkRead(ctx, userID, notificationID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return n, nil
}
