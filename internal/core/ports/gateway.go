package ports

import (
	"context"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

// Outbound message types pushed to live connections.
const (
	MessageNotification = "notification"
	MessageSubscribed   = "subscribed"
	MessageUnsubscribed = "unsubscribed"
	MessageError        = "error"
)

// OutboundMessage is the envelope written to a live connection.
type OutboundMessage struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// ConnectionGateway is implemented by the transport that owns live
// connections (websocket, SSE, long-poll). The engine only pushes.
type ConnectionGateway interface {
	Push(connectionID string, msg OutboundMessage) error
	ConnectionsForUser(userID string) []string
}

// EventSink accepts events emitted by room actors and the deadline scheduler.
// Implementations must preserve per-room ordering.
type EventSink interface {
	Emit(event domain.Event)
}

// EventHandler reacts to one engine event.
type EventHandler interface {
	HandleEvent(ctx context.Context, event domain.Event) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event domain.Event) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}

// DedupChecker abstracts the idempotency store for side effects.
type DedupChecker interface {
	IsDuplicate(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}
