package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names the room lifecycle events published by the engine.
type EventType string

const (
	EventBidAccepted EventType = "bid_accepted"
	EventRoomEnded   EventType = "room_ended"
	EventEndingSoon  EventType = "ending_soon"
)

// BidAccepted is emitted after an accepted bid has been durably stored.
type BidAccepted struct {
	RoomID             string          `json:"room_id"`
	BidID              string          `json:"bid_id"`
	BidderID           string          `json:"bidder_id"`
	NewPrice           decimal.Decimal `json:"new_price"`
	PreviousPrice      decimal.Decimal `json:"previous_price"`
	PreviousHighBidder string          `json:"previous_high_bidder,omitempty"`
	AcceptedAt         time.Time       `json:"accepted_at"`
	Title              string          `json:"title"`
}

// RoomEnded is emitted exactly once per room, after the terminal state is stored.
type RoomEnded struct {
	RoomID     string          `json:"room_id"`
	WinnerID   string          `json:"winner_id,omitempty"`
	FinalPrice decimal.Decimal `json:"final_price"`
	EndedAt    time.Time       `json:"ended_at"`
	Reason     EndReason       `json:"reason"`
	TotalBids  int             `json:"total_bids"`
	Title      string          `json:"title"`
	// Bidders lists every distinct bidder so losers can be notified.
	Bidders []string `json:"-"`
}

// EndingSoon is emitted by the deadline scheduler a fixed lead time before
// EndTime. It never mutates room state.
type EndingSoon struct {
	RoomID       string          `json:"room_id"`
	EndTime      time.Time       `json:"end_time"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Title        string          `json:"title"`
}

// Event is the envelope flowing from room actors to the broadcaster, the
// notification dispatcher and the outward publisher. Sequence is assigned by
// the room actor and increases per room.
type Event struct {
	Type       EventType `json:"type"`
	RoomID     string    `json:"room_id"`
	Sequence   int64     `json:"sequence"`
	OccurredAt time.Time `json:"occurred_at"`

	BidAccepted *BidAccepted `json:"bid_accepted,omitempty"`
	RoomEnded   *RoomEnded   `json:"room_ended,omitempty"`
	EndingSoon  *EndingSoon  `json:"ending_soon,omitempty"`
}

// Payload returns the type-specific body of the event.
func (e Event) Payload() any {
	switch e.Type {
	case EventBidAccepted:
		return e.BidAccepted
	case EventRoomEnded:
		return e.RoomEnded
	case EventEndingSoon:
		return e.EndingSoon
	}
	return nil
}
