package ports

import (
	"context"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// NotificationFilter narrows ListByRecipient.
type NotificationFilter struct {
	UnreadOnly bool
	Limit      int // capped by the service
}

// NotificationRepository persists per-user notifications. Rows are keyed by
// recipient + id; expiry is handled by the store's retention window.
type NotificationRepository interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, recipientID string, filter NotificationFilter) ([]*domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// WatchRepository persists watch subscriptions keyed by user + room.
type WatchRepository interface {
	// Upsert creates or replaces the preferences of a subscription.
	Upsert(ctx context.Context, w *domain.WatchSubscription) error
	// EnsureExists creates the subscription only when absent; existing
	// preferences are left untouched. It reports whether a row was created.
	EnsureExists(ctx context.Context, w *domain.WatchSubscription) (bool, error)
	Delete(ctx context.Context, userID, roomID string) error
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
	ListByRoom(ctx context.Context, roomID string) ([]*domain.WatchSubscription, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.WatchSubscription, error)
}
