package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoomStatus represents the lifecycle state of an auction room.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusEnded  RoomStatus = "ended"
)

// EndReason records why a room transitioned to ended.
type EndReason string

const (
	EndReasonExpired   EndReason = "expired"
	EndReasonCancelled EndReason = "cancelled"
)

// Bid is an accepted bid. Rejected attempts are never stored.
type Bid struct {
	ID         string          `json:"id"`
	RoomID     string          `json:"room_id"`
	BidderID   string          `json:"bidder_id"`
	Amount     decimal.Decimal `json:"amount"`
	AcceptedAt time.Time       `json:"accepted_at"`
	// CommandID is the client-supplied idempotency key the bid was accepted under.
	CommandID string `json:"-"`
}

// AuctionRoom is the aggregate owned by a single room actor.
//
// CurrentPrice equals StartingPrice while Bids is empty and the amount of the
// last bid otherwise. Once Status is RoomStatusEnded neither Bids nor CurrentPrice change.
type AuctionRoom struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	Tags          []string        `json:"tags"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	EndTime       time.Time       `json:"end_time"`
	Status        RoomStatus      `json:"status"`
	Bids          []Bid           `json:"bids"`
	CreatedAt     time.Time       `json:"created_at"`

	WinnerID  string     `json:"winner_id,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason EndReason  `json:"end_reason,omitempty"`

	// Version counts durable mutations; the store rejects writes made against a stale version.
	Version int64 `json:"version"`
}

// IsEnded reports whether the room reached its terminal state.
func (r *AuctionRoom) IsEnded() bool {
	return r.Status == RoomStatusEnded
}

// HighestBid returns the most recent (and therefore highest) accepted bid.
func (r *AuctionRoom) HighestBid() (Bid, bool) {
	if len(r.Bids) == 0 {
		return Bid{}, false
	}
	return r.Bids[len(r.Bids)-1], true
}

// HighestBidderID returns the current leader, or "" when nobody has bid.
func (r *AuctionRoom) HighestBidderID() string {
	if b, ok := r.HighestBid(); ok {
		return b.BidderID
	}
	return ""
}

// Bidders returns every distinct bidder in order of their first bid.
func (r *AuctionRoom) Bidders() []string {
	seen := make(map[string]struct{}, len(r.Bids))
	out := make([]string, 0, len(r.Bids))
	for _, b := range r.Bids {
		if _, ok := seen[b.BidderID]; ok {
			continue
		}
		seen[b.BidderID] = struct{}{}
		out = append(out, b.BidderID)
	}
	return out
}

// Clone returns a deep copy safe to hand out as a read snapshot.
func (r *AuctionRoom) Clone() *AuctionRoom {
	c := *r
	if r.Tags != nil {
		c.Tags = append([]string(nil), r.Tags...)
	}
	if r.Bids != nil {
		c.Bids = append([]Bid(nil), r.Bids...)
	}
	if r.EndedAt != nil {
		t := *r.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// NormalizeTags drops blanks and duplicates, keeping first-seen order (tags are a set).
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
