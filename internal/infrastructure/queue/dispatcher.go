package queue

import (
	"context"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

const (
	defaultWorkers = 8
	channelBuffer  = 256
	handlerTimeout = 10 * time.Second
)

// Dispatcher routes engine events to a fixed set of workers using consistent
// hashing on the room id, guaranteeing per-room event ordering. Every worker
// runs all registered handlers for each event, in registration order.
type Dispatcher struct {
	workers  []chan domain.Event
	handlers []ports.EventHandler
	log      zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan domain.Event, numWorkers),
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan domain.Event, channelBuffer)
	}
	return d
}

// Use registers a handler. Call before Start.
func (d *Dispatcher) Use(h ports.EventHandler) {
	d.handlers = append(d.handlers, h)
}

// Start launches all worker goroutines. Workers drain their channel and exit
// after Close, or stop immediately when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Emit sends an event to the worker responsible for its room. It blocks when
// that worker is channelBuffer events behind, which slows the emitting actor
// down instead of dropping events. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(event domain.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn().Str("room_id", event.RoomID).Str("type", string(event.Type)).Msg("event dropped after close")
		return
	}
	idx := d.shardIndex(event.RoomID)
	d.workers[idx] <- event
	metrics.EventQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
}

// Close stops accepting events and waits until workers have drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, ch := range d.workers {
			close(ch)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// shardIndex maps a room id deterministically to a worker index.
func (d *Dispatcher) shardIndex(roomID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan domain.Event) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			metrics.EventQueueDepth.WithLabelValues(label).Set(float64(len(ch)))
			d.handle(ctx, id, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, workerID int, event domain.Event) {
	for _, h := range d.handlers {
		hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
		err := h.HandleEvent(hctx, event)
		cancel()
		if err != nil {
			metrics.EventHandlerErrorsTotal.WithLabelValues(string(event.Type)).Inc()
			d.log.Error().Err(err).
				Str("room_id", event.RoomID).
				Str("type", string(event.Type)).
				Int64("seq", event.Sequence).
				Int("worker_id", workerID).
				Msg("event handler failed")
		}
	}
}
