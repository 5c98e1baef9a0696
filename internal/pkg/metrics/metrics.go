// Package metrics defines and registers all custom Prometheus metrics for the
// auction engine. It is the single source of truth for metric names, labels,
// and help strings. Metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auction"

// ── Bid metrics ───────────────────────────────────────────────────────────────

// BidsTotal counts bid commands by outcome.
// Label:
//   - result: "accepted", "replayed", "too_low", "self_bid", "ended", "invalid", "persistence_error"
var BidsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bids_total",
		Help:      "Total number of bid commands processed by room actors, by result.",
	},
	[]string{"result"},
)

// BidProcessingDuration measures time spent inside the room actor for one bid,
// including the durable write.
var BidProcessingDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bid_processing_duration_seconds",
		Help:      "Duration of bid processing inside the room actor, persistence included.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Actor metrics ─────────────────────────────────────────────────────────────

// ActiveActors tracks the number of room actors currently running.
var ActiveActors = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_actors",
		Help:      "Number of room actors currently running.",
	},
)

// ActorRestartsTotal counts actors recreated from the room store after
// becoming unhealthy.
var ActorRestartsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actor_restarts_total",
		Help:      "Total number of room actors recreated after failure.",
	},
)

// PersistenceFailuresTotal counts room store writes that failed after retries.
// Label:
//   - op: "append_bid", "mark_ended", "update_details"
var PersistenceFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persistence_failures_total",
		Help:      "Total number of room store writes that failed after all retries.",
	},
	[]string{"op"},
)

// RoomsFinalizedTotal counts rooms transitioned to ended.
// Label:
//   - reason: "expired" or "cancelled"
var RoomsFinalizedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_finalized_total",
		Help:      "Total number of rooms finalized, by reason.",
	},
	[]string{"reason"},
)

// ScheduledTimers tracks pending deadline and ending-soon timers.
var ScheduledTimers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduled_timers",
		Help:      "Number of pending deadline scheduler timers.",
	},
)

// ── Event pipeline metrics ────────────────────────────────────────────────────

// EventQueueDepth tracks the number of events waiting in each pipeline worker.
// Label:
//   - worker_id: numeric worker index
var EventQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queue_depth",
		Help:      "Current number of events pending in each event pipeline worker channel.",
	},
	[]string{"worker_id"},
)

// EventHandlerErrorsTotal counts handler failures in the event pipeline.
var EventHandlerErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_handler_errors_total",
		Help:      "Total number of event handler failures, by event type.",
	},
	[]string{"type"},
)

// ── Notification / live delivery metrics ──────────────────────────────────────

// NotificationsCreatedTotal counts persisted notifications by kind.
var NotificationsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_created_total",
		Help:      "Total number of notifications persisted, by kind.",
	},
	[]string{"kind"},
)

// LivePushFailuresTotal counts pushes to live connections that failed.
var LivePushFailuresTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_push_failures_total",
		Help:      "Total number of failed pushes to live connections.",
	},
)

// LiveConnections tracks open websocket connections.
var LiveConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_connections",
		Help:      "Number of open live connections.",
	},
)
