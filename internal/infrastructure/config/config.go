package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET, required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`

	// Optional admin account created at startup when absent.
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	Mongo  MongoConfig
	Redis  RedisConfig
	NATS   NATSConfig
	Engine EngineConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=auction_engine"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR, default=localhost:6379"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB,   default=0"`
	DedupTTL time.Duration `env:"DEDUP_TTL,  default=168h"`
}

type NATSConfig struct {
	URL    string `env:"NATS_URL,    default=nats://localhost:4222"`
	Stream string `env:"NATS_STREAM, default=AUCTION_EVENTS"`
}

// EngineConfig tunes the room actors, the deadline scheduler and the
// housekeeping jobs.
type EngineConfig struct {
	InboxSize         int           `env:"ACTOR_INBOX_SIZE,       default=64"`
	PersistRetries    int           `env:"PERSIST_RETRIES,        default=3"`
	PersistBackoff    time.Duration `env:"PERSIST_BACKOFF,        default=50ms"`
	IdleTimeout       time.Duration `env:"ACTOR_IDLE_TIMEOUT,     default=10m"`
	IdleSweepInterval time.Duration `env:"IDLE_SWEEP_INTERVAL,    default=1m"`
	MaxRestarts       int           `env:"MAX_ACTOR_RESTARTS,     default=2"`
	EndingSoonLead    time.Duration `env:"ENDING_SOON_LEAD,       default=5m"`
	EventWorkers      int           `env:"EVENT_WORKERS,          default=8"`
	NotificationTTL   time.Duration `env:"NOTIFICATION_RETENTION, default=720h"`
	RoomRetention     time.Duration `env:"ROOM_RETENTION,         default=2160h"`
}

// IsProduction reports whether logs should be emitted as plain JSON.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.Engine.PersistRetries < 1 {
		return nil, fmt.Errorf("config: PERSIST_RETRIES must be at least 1")
	}
	if (cfg.AdminUsername == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("config: ADMIN_USERNAME and ADMIN_PASSWORD must be set together")
	}
	return &cfg, nil
}
