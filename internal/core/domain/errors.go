package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Bid rejections. User-facing and not retryable as-is: the client must refresh
// the room state and submit a corrected bid.
var (
	ErrAuctionEnded = errors.New("auction has ended")
	ErrSelfBid      = errors.New("seller cannot bid on own room")
	ErrBidTooLow    = errors.New("bid amount too low")
)

var (
	ErrInvalidBid    = errors.New("invalid bid")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRoom   = errors.New("invalid room")
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomHasBids   = errors.New("room already has bids")
	ErrRoomStillOpen = errors.New("room end time not reached")
	ErrForbidden     = errors.New("access forbidden")
)

// Transient engine failures. Callers retry with the same command id.
var (
	ErrPersistence      = errors.New("persistence failure")
	ErrActorUnavailable = errors.New("room actor unavailable")
	ErrVersionConflict  = errors.New("room version conflict")
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrWatchNotFound        = errors.New("watch subscription not found")
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

// BidRejectedError carries the room's current price alongside the rejection
// reason so the client can re-bid without another round trip.
type BidRejectedError struct {
	Reason       error
	CurrentPrice decimal.Decimal
}

func (e *BidRejectedError) Error() string {
	return fmt.Sprintf("%v (current price %s)", e.Reason, e.CurrentPrice.String())
}

func (e *BidRejectedError) Unwrap() error {
	return e.Reason
}

// IsBidRejection reports whether err is one of the user-facing bid rejections.
func IsBidRejection(err error) bool {
	return errors.Is(err, ErrAuctionEnded) || errors.Is(err, ErrSelfBid) || errors.Is(err, ErrBidTooLow)
}
