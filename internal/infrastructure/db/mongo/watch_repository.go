package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

const collectionWatches = "watches"

type watchDoc struct {
	UserID         string    `bson:"user_id"`
	RoomID         string    `bson:"room_id"`
	NotifyOnOutbid bool      `bson:"notify_on_outbid"`
	NotifyOnEnding bool      `bson:"notify_on_ending"`
	AddedAt        time.Time `bson:"added_at"`
}

func (d watchDoc) toDomain() *domain.WatchSubscription {
	return &domain.WatchSubscription{
		UserID:         d.UserID,
		RoomID:         d.RoomID,
		NotifyOnOutbid: d.NotifyOnOutbid,
		NotifyOnEnding: d.NotifyOnEnding,
		AddedAt:        d.AddedAt.UTC(),
	}
}

// WatchRepository stores one document per (user_id, room_id), enforced by a
// unique index.
type WatchRepository struct {
	col *mongo.Collection
}

func NewWatchRepository(db *mongo.Database) *WatchRepository {
	return &WatchRepository{col: db.Collection(collectionWatches)}
}

var _ ports.WatchRepository = (*WatchRepository)(nil)

func (r *WatchRepository) Upsert(ctx context.Context, w *domain.WatchSubscription) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"notify_on_outbid": w.NotifyOnOutbid,
			"notify_on_ending": w.NotifyOnEnding,
		},
		"$setOnInsert": bson.M{"added_at": w.AddedAt.UTC()},
	}
	_, err := r.col.UpdateOne(ctx, watchFilter(w.UserID, w.RoomID), update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert watch: %w", err)
	}
	return nil
}

// EnsureExists inserts the subscription only when the pair has none yet.
func (r *WatchRepository) EnsureExists(ctx context.Context, w *domain.WatchSubscription) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	update := bson.M{"$setOnInsert": bson.M{
		"notify_on_outbid": w.NotifyOnOutbid,
		"notify_on_ending": w.NotifyOnEnding,
		"added_at":         w.AddedAt.UTC(),
	}}
	res, err := r.col.UpdateOne(ctx, watchFilter(w.UserID, w.RoomID), update, options.Update().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost an insert race; the other writer created it.
			return false, nil
		}
		return false, fmt.Errorf("ensure watch: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *WatchRepository) Delete(ctx context.Context, userID, roomID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, watchFilter(userID, roomID))
	if err != nil {
		return fmt.Errorf("delete watch: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrWatchNotFound
	}
	return nil
}

func (r *WatchRepository) DeleteByRoom(ctx context.Context, roomID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"room_id": roomID})
	if err != nil {
		return 0, fmt.Errorf("delete room watches: %w", err)
	}
	return res.DeletedCount, nil
}

func (r *WatchRepository) ListByRoom(ctx context.Context, roomID string) ([]*domain.WatchSubscription, error) {
	return r.list(ctx, bson.M{"room_id": roomID})
}

func (r *WatchRepository) ListByUser(ctx context.Context, userID string) ([]*domain.WatchSubscription, error) {
	return r.list(ctx, bson.M{"user_id": userID})
}

func (r *WatchRepository) list(ctx context.Context, filter bson.M) ([]*domain.WatchSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "added_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list watches: %w", err)
	}
	defer cur.Close(ctx)

	var docs []watchDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode watches: %w", err)
	}
	out := make([]*domain.WatchSubscription, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

// EnsureIndexes creates the unique pair index and the per-room lookup index.
func (r *WatchRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "room_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "room_id", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func watchFilter(userID, roomID string) bson.M {
	return bson.M{"user_id": userID, "room_id": roomID}
}
