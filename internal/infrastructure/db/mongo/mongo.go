package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultTimeout = 10 * time.Second
	indexTimeout   = 30 * time.Second
)

// Config captures the minimal settings required to establish a MongoDB connection.
type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect establishes a MongoDB client, verifies connectivity with a ping, and
// returns both the client and the selected database. A default timeout is
// applied when none is provided.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	return client, db, nil
}

// Store bundles every repository backed by one database.
type Store struct {
	Rooms         *RoomRepository
	Notifications *NotificationRepository
	Watches       *WatchRepository
	Users         *UserRepository
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		Rooms:         NewRoomRepository(db),
		Notifications: NewNotificationRepository(db),
		Watches:       NewWatchRepository(db),
		Users:         NewUserRepository(db),
	}
}

// EnsureIndexes builds the indexes of every collection. notificationRetention
// sets the TTL of the notifications collection.
func (s *Store) EnsureIndexes(ctx context.Context, notificationRetention time.Duration) error {
	if err := s.Rooms.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("rooms indexes: %w", err)
	}
	if err := s.Notifications.EnsureIndexes(ctx, notificationRetention); err != nil {
		return fmt.Errorf("notifications indexes: %w", err)
	}
	if err := s.Watches.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("watches indexes: %w", err)
	}
	if err := s.Users.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}
