package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/bidhall/auction-engine/internal/api/handler"
	"github.com/bidhall/auction-engine/internal/api/middleware"
	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

// Dependencies are the collaborators the HTTP surface is built on.
type Dependencies struct {
	Log       zerolog.Logger
	JWTSecret string

	Auth          ports.AuthService
	Bidding       ports.BiddingService
	Watches       ports.WatchService
	Notifications ports.NotificationService

	Hub           handler.ConnectionHub
	Subscriptions handler.RoomSubscriptions
	Stats         handler.EngineStats
	HealthChecks  map[string]handler.DependencyCheck

	// Defaults to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	registerer, gatherer := deps.Registerer, deps.Gatherer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "auction",
		Subsystem:  "http",
		Registerer: registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/v1/ws"
		},
	}))

	// --- Ops (no auth required) ---
	health := handler.NewHealthHandler(deps.HealthChecks)
	e.GET("/health", health.Liveness)
	e.GET("/health/ready", health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// --- Auth routes ---
	authHandler := handler.NewAuthHandler(deps.Auth)
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)

	// --- Authenticated API ---
	v1 := e.Group("/v1", middleware.Auth(deps.JWTSecret), middleware.RBAC(domain.RoleUser, domain.RoleAdmin))

	rooms := handler.NewRoomHandler(deps.Bidding)
	v1.POST("/rooms", rooms.Create)
	v1.GET("/rooms/:room_id", rooms.Get)
	v1.PATCH("/rooms/:room_id", rooms.Update)
	v1.POST("/rooms/:room_id/cancel", rooms.Cancel)
	v1.POST("/rooms/:room_id/bids", rooms.PlaceBid)

	watches := handler.NewWatchHandler(deps.Watches, deps.Notifications)
	v1.PUT("/rooms/:room_id/watch", watches.Watch)
	v1.DELETE("/rooms/:room_id/watch", watches.Unwatch)
	v1.GET("/watches", watches.ListWatches)
	v1.GET("/notifications", watches.ListNotifications)
	v1.POST("/notifications/read-all", watches.MarkAllRead)
	v1.POST("/notifications/:notification_id/read", watches.MarkRead)

	live := handler.NewWSHandler(deps.Hub, deps.Subscriptions, deps.Bidding, deps.Log)
	v1.GET("/ws", live.Connect)

	admin := v1.Group("/admin", middleware.RBAC(domain.RoleAdmin))
	admin.GET("/stats", handler.NewAdminHandler(deps.Stats).Stats)

	return e
}
