package domain

import "time"

// NotificationKind classifies a per-user notification.
type NotificationKind string

const (
	NotificationOutbid     NotificationKind = "outbid"
	NotificationEndingSoon NotificationKind = "ending_soon"
	NotificationWon        NotificationKind = "won"
	NotificationLost       NotificationKind = "lost"
)

// Notification is created by the notification dispatcher. The only mutation
// afterwards is flipping IsRead.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipient_id"`
	Kind        NotificationKind `json:"kind"`
	RoomID      string           `json:"room_id"`
	Message     string           `json:"message"`
	Link        string           `json:"link"`
	IsRead      bool             `json:"is_read"`
	CreatedAt   time.Time        `json:"created_at"`
}

// WatchSubscription is a user's durable opt-in to notifications for a room.
type WatchSubscription struct {
	UserID         string    `json:"user_id"`
	RoomID         string    `json:"room_id"`
	NotifyOnOutbid bool      `json:"notify_on_outbid"`
	NotifyOnEnding bool      `json:"notify_on_ending"`
	AddedAt        time.Time `json:"added_at"`
}

// RoomLink is the client-side path to a room.
func RoomLink(roomID string) string {
	return "/rooms/" + roomID
}
