package nats

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bidhall/auction-engine/internal/core/domain"
)

func TestSubjectAndMsgID(t *testing.T) {
	ev := domain.Event{Type: domain.EventBidAccepted, RoomID: "r1", Sequence: 4}
	require.Equal(t, "auction.events.bid_accepted.r1", Subject(ev))
	require.Equal(t, "r1:bid_accepted:4", MsgID(ev))

	ended := domain.Event{Type: domain.EventRoomEnded, RoomID: "r1", Sequence: 4}
	require.NotEqual(t, MsgID(ev), MsgID(ended))
}
