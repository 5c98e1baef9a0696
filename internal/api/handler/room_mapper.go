package handler

import (
	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

func toRoomResponse(r *domain.AuctionRoom) roomResponse {
	bids := make([]bidResponse, 0, len(r.Bids))
	for _, b := range r.Bids {
		bids = append(bids, bidResponse{
			ID:         b.ID,
			BidderID:   b.BidderID,
			Amount:     b.Amount.String(),
			AcceptedAt: b.AcceptedAt,
		})
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return roomResponse{
		ID:              r.ID,
		SellerID:        r.SellerID,
		Title:           r.Title,
		Description:     r.Description,
		Category:        r.Category,
		Tags:            tags,
		StartingPrice:   r.StartingPrice.String(),
		CurrentPrice:    r.CurrentPrice.String(),
		HighestBidderID: r.HighestBidderID(),
		EndTime:         r.EndTime,
		Status:          string(r.Status),
		WinnerID:        r.WinnerID,
		EndReason:       string(r.EndReason),
		EndedAt:         r.EndedAt,
		Version:         r.Version,
		Bids:            bids,
		CreatedAt:       r.CreatedAt,
		Links: roomLinks{
			Self: "/v1/rooms/" + r.ID,
			Bids: "/v1/rooms/" + r.ID + "/bids",
		},
	}
}

func toPlaceBidResponse(res *ports.BidResult) placeBidResponse {
	return placeBidResponse{
		BidID:              res.BidID,
		RoomID:             res.RoomID,
		BidderID:           res.BidderID,
		NewPrice:           res.NewPrice.String(),
		PreviousHighBidder: res.PreviousHighBidder,
		AcceptedAt:         res.AcceptedAt,
		Replayed:           res.Replayed,
	}
}

func toRoomEndedResponse(e *domain.RoomEnded) roomEndedResponse {
	return roomEndedResponse{
		RoomID:     e.RoomID,
		WinnerID:   e.WinnerID,
		FinalPrice: e.FinalPrice.String(),
		Reason:     string(e.Reason),
		EndedAt:    e.EndedAt,
		TotalBids:  e.TotalBids,
	}
}

func toUpdateInput(roomID, userID, role string, req updateRoomRequest) ports.UpdateRoomInput {
	return ports.UpdateRoomInput{
		RoomID:      roomID,
		ActorID:     userID,
		ActorRole:   role,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Tags:        req.Tags,
		EndTime:     req.EndTime,
	}
}
