package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

const collectionRooms = "rooms"

type bidDoc struct {
	ID         string               `bson:"id"`
	BidderID   string               `bson:"bidder_id"`
	Amount     primitive.Decimal128 `bson:"amount"`
	AcceptedAt time.Time            `bson:"accepted_at"`
	CommandID  string               `bson:"command_id,omitempty"`
}

type roomDoc struct {
	ID            string               `bson:"_id"`
	SellerID      string               `bson:"seller_id"`
	Title         string               `bson:"title"`
	Description   string               `bson:"description"`
	Category      string               `bson:"category"`
	Tags          []string             `bson:"tags"`
	StartingPrice primitive.Decimal128 `bson:"starting_price"`
	CurrentPrice  primitive.Decimal128 `bson:"current_price"`
	EndTime       time.Time            `bson:"end_time"`
	Status        string               `bson:"status"`
	Bids          []bidDoc             `bson:"bids"`
	CreatedAt     time.Time            `bson:"created_at"`
	WinnerID      string               `bson:"winner_id,omitempty"`
	EndedAt       *time.Time           `bson:"ended_at,omitempty"`
	EndReason     string               `bson:"end_reason,omitempty"`
	Version       int64                `bson:"version"`
}

// RoomRepository is the Room Store. Each room is one document holding its
// bid history, so a bid and the new current price land in a single atomic
// update conditioned on the room's version.
type RoomRepository struct {
	col *mongo.Collection
}

func NewRoomRepository(db *mongo.Database) *RoomRepository {
	return &RoomRepository{col: db.Collection(collectionRooms)}
}

var _ ports.RoomRepository = (*RoomRepository)(nil)

// Create inserts a new room document.
func (r *RoomRepository) Create(ctx context.Context, room *domain.AuctionRoom) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc, err := toRoomDoc(room)
	if err != nil {
		return err
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// FindByID loads a room with its full bid history.
func (r *RoomRepository) FindByID(ctx context.Context, roomID string) (*domain.AuctionRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc roomDoc
	err := r.col.FindOne(ctx, bson.M{"_id": roomID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("find room: %w", err)
	}
	return doc.toDomain()
}

// AppendBid sets current_price and pushes the bid in one update that only
// matches an active room at expectedVersion.
func (r *RoomRepository) AppendBid(ctx context.Context, roomID string, bid domain.Bid, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	amount, err := toDecimal128(bid.Amount)
	if err != nil {
		return err
	}
	entry := bidDoc{
		ID:         bid.ID,
		BidderID:   bid.BidderID,
		Amount:     amount,
		AcceptedAt: bid.AcceptedAt.UTC(),
		CommandID:  bid.CommandID,
	}

	filter := bson.M{"_id": roomID, "version": expectedVersion, "status": string(domain.RoomStatusActive)}
	update := bson.M{
		"$set":  bson.M{"current_price": amount, "version": expectedVersion + 1},
		"$push": bson.M{"bids": entry},
	}
	return r.conditionalUpdate(ctx, roomID, filter, update)
}

// MarkEnded records the terminal state of an active room.
func (r *RoomRepository) MarkEnded(ctx context.Context, roomID, winnerID string, endedAt time.Time, reason domain.EndReason, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	set := bson.M{
		"status":     string(domain.RoomStatusEnded),
		"ended_at":   endedAt.UTC(),
		"end_reason": string(reason),
		"version":    expectedVersion + 1,
	}
	if winnerID != "" {
		set["winner_id"] = winnerID
	}
	filter := bson.M{"_id": roomID, "version": expectedVersion, "status": string(domain.RoomStatusActive)}
	return r.conditionalUpdate(ctx, roomID, filter, bson.M{"$set": set})
}

// UpdateDetails rewrites the seller-editable fields of an active room.
func (r *RoomRepository) UpdateDetails(ctx context.Context, room *domain.AuctionRoom, expectedVersion int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"_id": room.ID, "version": expectedVersion, "status": string(domain.RoomStatusActive)}
	update := bson.M{"$set": bson.M{
		"title":       room.Title,
		"description": room.Description,
		"category":    room.Category,
		"tags":        room.Tags,
		"end_time":    room.EndTime.UTC(),
		"version":     expectedVersion + 1,
	}}
	return r.conditionalUpdate(ctx, room.ID, filter, update)
}

// conditionalUpdate applies update and tells a missing room apart from a
// stale version when nothing matched.
func (r *RoomRepository) conditionalUpdate(ctx context.Context, roomID string, filter, update bson.M) error {
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update room %s: %w", roomID, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := r.col.CountDocuments(ctx, bson.M{"_id": roomID})
	if err != nil {
		return fmt.Errorf("update room %s: %w", roomID, err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}
	return domain.ErrVersionConflict
}

// ListActive returns every room still accepting bids.
func (r *RoomRepository) ListActive(ctx context.Context) ([]*domain.AuctionRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"status": string(domain.RoomStatusActive)}, options.Find().SetSort(bson.D{{Key: "end_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	defer cur.Close(ctx)

	var rooms []*domain.AuctionRoom
	for cur.Next(ctx) {
		var doc roomDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode room: %w", err)
		}
		room, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, cur.Err()
}

// ListEndedBefore returns ids of rooms that ended before cutoff, oldest first.
func (r *RoomRepository) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "ended_at", Value: 1}}).
		SetLimit(int64(limit))
	filter := bson.M{"status": string(domain.RoomStatusEnded), "ended_at": bson.M{"$lt": cutoff.UTC()}}

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list ended rooms: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode room id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

// Delete removes a room document.
func (r *RoomRepository) Delete(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": roomID}); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

// EnsureIndexes creates the indexes used by startup seeding and purging.
func (r *RoomRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_time", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "ended_at", Value: 1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func toRoomDoc(room *domain.AuctionRoom) (*roomDoc, error) {
	starting, err := toDecimal128(room.StartingPrice)
	if err != nil {
		return nil, err
	}
	current, err := toDecimal128(room.CurrentPrice)
	if err != nil {
		return nil, err
	}

	doc := &roomDoc{
		ID:            room.ID,
		SellerID:      room.SellerID,
		Title:         room.Title,
		Description:   room.Description,
		Category:      room.Category,
		Tags:          room.Tags,
		StartingPrice: starting,
		CurrentPrice:  current,
		EndTime:       room.EndTime.UTC(),
		Status:        string(room.Status),
		Bids:          make([]bidDoc, 0, len(room.Bids)),
		CreatedAt:     room.CreatedAt.UTC(),
		WinnerID:      room.WinnerID,
		EndedAt:       room.EndedAt,
		EndReason:     string(room.EndReason),
		Version:       room.Version,
	}
	if doc.Tags == nil {
		doc.Tags = []string{}
	}
	for _, b := range room.Bids {
		amount, err := toDecimal128(b.Amount)
		if err != nil {
			return nil, err
		}
		doc.Bids = append(doc.Bids, bidDoc{
			ID:         b.ID,
			BidderID:   b.BidderID,
			Amount:     amount,
			AcceptedAt: b.AcceptedAt.UTC(),
			CommandID:  b.CommandID,
		})
	}
	return doc, nil
}

func (d *roomDoc) toDomain() (*domain.AuctionRoom, error) {
	starting, err := fromDecimal128(d.StartingPrice)
	if err != nil {
		return nil, err
	}
	current, err := fromDecimal128(d.CurrentPrice)
	if err != nil {
		return nil, err
	}

	room := &domain.AuctionRoom{
		ID:            d.ID,
		SellerID:      d.SellerID,
		Title:         d.Title,
		Description:   d.Description,
		Category:      d.Category,
		Tags:          d.Tags,
		StartingPrice: starting,
		CurrentPrice:  current,
		EndTime:       d.EndTime.UTC(),
		Status:        domain.RoomStatus(d.Status),
		Bids:          make([]domain.Bid, 0, len(d.Bids)),
		CreatedAt:     d.CreatedAt.UTC(),
		WinnerID:      d.WinnerID,
		EndReason:     domain.EndReason(d.EndReason),
		Version:       d.Version,
	}
	if d.EndedAt != nil {
		t := d.EndedAt.UTC()
		room.EndedAt = &t
	}
	for _, b := range d.Bids {
		amount, err := fromDecimal128(b.Amount)
		if err != nil {
			return nil, err
		}
		room.Bids = append(room.Bids, domain.Bid{
			ID:         b.ID,
			RoomID:     d.ID,
			BidderID:   b.BidderID,
			Amount:     amount,
			AcceptedAt: b.AcceptedAt.UTC(),
			CommandID:  b.CommandID,
		})
	}
	return room, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	if err := domain.ValidateAmount(d); err != nil {
		return primitive.Decimal128{}, err
	}
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode amount: %w: %w", domain.ErrInvalidAmount, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("decode amount %s: %w", v.String(), err)
	}
	return d, nil
}
