package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestAuctionRoom_Bidders(t *testing.T) {
	r := &AuctionRoom{Bids: []Bid{
		{BidderID: "A"}, {BidderID: "B"}, {BidderID: "A"}, {BidderID: "C"},
	}}
	require.Equal(t, []string{"A", "B", "C"}, r.Bidders())
	require.Equal(t, "C", r.HighestBidderID())

	empty := &AuctionRoom{}
	require.Empty(t, empty.Bidders())
	require.Empty(t, empty.HighestBidderID())
}

func TestAuctionRoom_CloneIsDeep(t *testing.T) {
	ended := time.Now()
	r := &AuctionRoom{
		Tags:    []string{"a"},
		Bids:    []Bid{{ID: "b1", Amount: decimal.NewFromInt(5)}},
		EndedAt: &ended,
	}
	c := r.Clone()
	c.Tags[0] = "z"
	c.Bids[0].ID = "changed"
	*c.EndedAt = ended.Add(time.Hour)

	require.Equal(t, "a", r.Tags[0])
	require.Equal(t, "b1", r.Bids[0].ID)
	require.True(t, r.EndedAt.Equal(ended))
}

func TestNormalizeTags(t *testing.T) {
	require.Equal(t, []string{"x", "y"}, NormalizeTags([]string{"x", "", "y", "x"}))
	require.Empty(t, NormalizeTags(nil))
}

func TestBidRejectedError(t *testing.T) {
	err := fmt.Errorf("place bid: %w", &BidRejectedError{Reason: ErrBidTooLow, CurrentPrice: decimal.RequireFromString("150")})

	require.True(t, errors.Is(err, ErrBidTooLow))
	require.True(t, IsBidRejection(err))
	require.Contains(t, err.Error(), "150")

	var rej *BidRejectedError
	require.True(t, errors.As(err, &rej))
	require.True(t, rej.CurrentPrice.Equal(decimal.NewFromInt(150)))

	require.False(t, IsBidRejection(ErrPersistence))
}
