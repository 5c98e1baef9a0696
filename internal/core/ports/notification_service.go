package ports

import (
	"context"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// ListNotificationsResult is returned by ListNotifications.
type ListNotificationsResult struct {
	Items       []*domain.Notification
	UnreadCount int64
}

// NotificationService is the read/mark surface of the notification center.
type NotificationService interface {
	ListNotifications(ctx context.Context, userID string, filter NotificationFilter) (*ListNotificationsResult, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// WatchInput carries a user's notification preferences for a room.
type WatchInput struct {
	UserID         string
	RoomID         string
	NotifyOnOutbid bool
	NotifyOnEnding bool
}

// WatchService manages durable watch subscriptions.
type WatchService interface {
	Watch(ctx context.Context, input WatchInput) (*domain.WatchSubscription, error)
	Unwatch(ctx context.Context, userID, roomID string) error
	ListWatches(ctx context.Context, userID string) ([]*domain.WatchSubscription, error)
}
