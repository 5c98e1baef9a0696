package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/bidhall/auction-engine/docs"
	"github.com/bidhall/auction-engine/internal/api"
	"github.com/bidhall/auction-engine/internal/api/handler"
	"github.com/bidhall/auction-engine/internal/core/service"
	"github.com/bidhall/auction-engine/internal/infrastructure/config"
	mongodb "github.com/bidhall/auction-engine/internal/infrastructure/db/mongo"
	redisdb "github.com/bidhall/auction-engine/internal/infrastructure/db/redis"
	natsbus "github.com/bidhall/auction-engine/internal/infrastructure/messaging/nats"
	"github.com/bidhall/auction-engine/internal/infrastructure/queue"
	"github.com/bidhall/auction-engine/internal/infrastructure/scheduler"
	"github.com/bidhall/auction-engine/internal/infrastructure/ws"
	"github.com/bidhall/auction-engine/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

//	@title			Auction Engine API
//	@version		1.0
//	@description	Real-time auction rooms: bidding, deadlines, live updates and notifications.
//	@BasePath		/

// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
// @description				Type "Bearer" followed by a space and JWT token.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "auction-engine",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("auction engine stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Infrastructure ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongodb")

	store := mongodb.NewStore(db)
	if err := store.EnsureIndexes(ctx, cfg.Engine.NotificationTTL); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	nc, err := natsbus.Connect(cfg.NATS.URL)
	if err != nil {
		return err
	}
	defer func() { _ = nc.Drain() }()
	publisher, err := natsbus.NewPublisher(ctx, nc, cfg.NATS.Stream, logger.For("nats_publisher"))
	if err != nil {
		return err
	}

	// --- Engine ---
	dispatcher := queue.NewDispatcher(cfg.Engine.EventWorkers, logger.For("event_dispatcher"))
	hub := ws.NewHub(logger.For("ws_hub"))
	broadcaster := service.NewBroadcaster(hub, logger.For("broadcaster"))
	notifications := service.NewNotificationService(
		store.Notifications,
		store.Watches,
		redisdb.NewDedupChecker(rdb, cfg.Redis.DedupTTL),
		hub,
		time.Now,
		logger.For("notifications"),
	)

	registry := service.NewRoomRegistry(service.RegistryConfig{
		InboxSize:      cfg.Engine.InboxSize,
		PersistRetries: cfg.Engine.PersistRetries,
		PersistBackoff: cfg.Engine.PersistBackoff,
		IdleTimeout:    cfg.Engine.IdleTimeout,
		MaxRestarts:    cfg.Engine.MaxRestarts,
	}, store.Rooms, dispatcher, time.Now, logger.For("room_registry"))
	registry.SetSubscriberCounter(broadcaster)

	deadlines := service.NewDeadlineScheduler(registry, dispatcher, cfg.Engine.EndingSoonLead, time.Now, logger.For("deadline_scheduler"))
	registry.SetScheduler(deadlines)

	// Handlers run in registration order for every event of a room.
	dispatcher.Use(broadcaster)
	dispatcher.Use(notifications)
	dispatcher.Use(deadlines)
	dispatcher.Use(publisher)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	dispatcher.Start(workerCtx)

	if _, err := deadlines.Seed(ctx, store.Rooms); err != nil {
		return fmt.Errorf("seed deadlines: %w", err)
	}
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		deadlines.Run(schedCtx)
	}()

	janitor, err := scheduler.NewJanitor(scheduler.JanitorConfig{
		IdleSweepInterval: cfg.Engine.IdleSweepInterval,
		RoomRetention:     cfg.Engine.RoomRetention,
	}, registry, store.Rooms, store.Watches, time.Now, logger.For("janitor"))
	if err != nil {
		stopScheduler()
		return err
	}
	if err := janitor.Start(); err != nil {
		stopScheduler()
		return err
	}

	// --- Collaborators ---
	auth := service.NewAuthService(store.Users, service.AuthConfig{JWTSecret: cfg.JWTSecret, TokenTTL: cfg.TokenTTL}, time.Now, logger.For("auth"))
	if err := bootstrapAdmin(ctx, auth, cfg, log); err != nil {
		log.Warn().Err(err).Msg("admin bootstrap failed")
	}

	e := api.NewRouter(api.Dependencies{
		Log:           log,
		JWTSecret:     cfg.JWTSecret,
		Auth:          auth,
		Bidding:       service.NewBiddingService(store.Rooms, registry, deadlines, time.Now, logger.For("bidding")),
		Watches:       service.NewWatchService(store.Watches, store.Rooms, time.Now, logger.For("watches")),
		Notifications: notifications,
		Hub:           hub,
		Subscriptions: broadcaster,
		Stats:         engineStats{registry: registry, deadlines: deadlines, hub: hub},
		HealthChecks: map[string]handler.DependencyCheck{
			"mongodb": handler.MongoCheck(db),
			"redis":   handler.RedisCheck(rdb),
			"nats":    handler.NATSCheck(nc),
		},
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-srvErr:
		log.Error().Err(err).Msg("http server failed")
	}

	// --- Graceful shutdown ---
	// Stop intake first, then timers, then actors, then drain the event
	// pipeline so every emitted event reaches its handlers.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
	}
	hub.CloseAll()
	stopScheduler()
	<-schedDone
	if err := janitor.Stop(); err != nil {
		log.Error().Err(err).Msg("janitor shutdown")
	}
	if err := registry.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("room registry shutdown")
	}
	dispatcher.Close()
	stopWorkers()

	log.Info().Msg("auction engine stopped gracefully")
	return nil
}

// bootstrapAdmin creates the configured admin account when it does not exist.
func bootstrapAdmin(ctx context.Context, auth *service.AuthService, cfg *config.Config, log zerolog.Logger) error {
	if cfg.AdminUsername == "" {
		return nil
	}
	created, err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("username", cfg.AdminUsername).Msg("admin account created")
	}
	return nil
}

type engineStats struct {
	registry  *service.RoomRegistry
	deadlines *service.DeadlineScheduler
	hub       *ws.Hub
}

func (s engineStats) ActiveActors() int    { return s.registry.ActiveCount() }
func (s engineStats) PendingTimers() int   { return s.deadlines.Pending() }
func (s engineStats) LiveConnections() int { return s.hub.Count() }
