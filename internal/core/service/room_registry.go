package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

const (
	defaultInboxSize      = 64
	defaultPersistRetries = 3
	defaultPersistBackoff = 50 * time.Millisecond
	defaultPersistTimeout = 5 * time.Second
	defaultIdleTimeout    = 10 * time.Minute
	defaultMaxRestarts    = 2
)

// RegistryConfig tunes actor behaviour. Zero values fall back to defaults.
type RegistryConfig struct {
	InboxSize      int
	PersistRetries int
	PersistBackoff time.Duration
	PersistTimeout time.Duration
	IdleTimeout    time.Duration
	MaxRestarts    int
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	if c.InboxSize <= 0 {
		c.InboxSize = defaultInboxSize
	}
	if c.PersistRetries <= 0 {
		c.PersistRetries = defaultPersistRetries
	}
	if c.PersistBackoff <= 0 {
		c.PersistBackoff = defaultPersistBackoff
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = defaultPersistTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.MaxRestarts < 0 {
		c.MaxRestarts = defaultMaxRestarts
	}
	return c
}

// SubscriberCounter reports live subscriptions per room. The registry never
// reaps an actor somebody is still watching.
type SubscriberCounter interface {
	SubscriberCount(roomID string) int
}

// RoomScheduler arms and disarms deadline timers.
type RoomScheduler interface {
	Schedule(room *domain.AuctionRoom)
	Cancel(roomID string)
}

// RoomRegistry maps room ids to running actors and guarantees at most one
// live actor per room. Actors are created lazily from the room store.
type RoomRegistry struct {
	cfg   RegistryConfig
	store ports.RoomRepository
	sink  ports.EventSink
	clock func() time.Time
	log   zerolog.Logger

	subscribers SubscriberCounter
	scheduler   RoomScheduler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	actors  map[string]*roomActor
	closed  bool
	loading singleflight.Group
}

// NewRoomRegistry builds a registry. clock may be nil, meaning time.Now.
func NewRoomRegistry(cfg RegistryConfig, store ports.RoomRepository, sink ports.EventSink, clock func() time.Time, log zerolog.Logger) *RoomRegistry {
	if clock == nil {
		clock = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RoomRegistry{
		cfg:    cfg.withDefaults(),
		store:  store,
		sink:   sink,
		clock:  clock,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		actors: make(map[string]*roomActor),
	}
}

// SetSubscriberCounter wires the broadcaster after construction.
func (r *RoomRegistry) SetSubscriberCounter(s SubscriberCounter) { r.subscribers = s }

// SetScheduler wires the deadline scheduler after construction.
func (r *RoomRegistry) SetScheduler(s RoomScheduler) { r.scheduler = s }

// PlaceBid routes a bid to the room's actor.
func (r *RoomRegistry) PlaceBid(ctx context.Context, in ports.PlaceBidInput) (*ports.BidResult, error) {
	rep, err := r.dispatch(ctx, in.RoomID, &roomCommand{kind: cmdPlaceBid, bid: in})
	if err != nil {
		return nil, err
	}
	return rep.bid, rep.err
}

// Finalize ends an expired room. It is idempotent.
func (r *RoomRegistry) Finalize(ctx context.Context, roomID string) (*domain.RoomEnded, error) {
	rep, err := r.dispatch(ctx, roomID, &roomCommand{kind: cmdFinalize})
	if err != nil {
		return nil, err
	}
	return rep.ended, rep.err
}

// Cancel ends a room administratively with no winner.
func (r *RoomRegistry) Cancel(ctx context.Context, in ports.CancelRoomInput) (*domain.RoomEnded, error) {
	rep, err := r.dispatch(ctx, in.RoomID, &roomCommand{kind: cmdCancel, cancel: in})
	if err != nil {
		return nil, err
	}
	return rep.ended, rep.err
}

// Update applies seller edits through the actor.
func (r *RoomRegistry) Update(ctx context.Context, in ports.UpdateRoomInput) (*domain.AuctionRoom, error) {
	rep, err := r.dispatch(ctx, in.RoomID, &roomCommand{kind: cmdUpdate, update: in})
	if err != nil {
		return nil, err
	}
	return rep.room, rep.err
}

// Snapshot returns the actor's last published state without queueing behind
// pending commands.
func (r *RoomRegistry) Snapshot(ctx context.Context, roomID string) (*domain.AuctionRoom, error) {
	a, err := r.actorFor(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return a.view(), nil
}

// dispatch delivers cmd to a live actor. An actor that stops before taking
// the command is replaced from the store, up to MaxRestarts times.
func (r *RoomRegistry) dispatch(ctx context.Context, roomID string, cmd *roomCommand) (commandReply, error) {
	for attempt := 0; attempt <= r.cfg.MaxRestarts; attempt++ {
		a, err := r.actorFor(ctx, roomID)
		if err != nil {
			return commandReply{}, err
		}

		cmd.reply = make(chan commandReply, 1)
		rep, delivered, err := a.submit(ctx, cmd)
		if err != nil {
			return commandReply{}, err
		}
		if delivered {
			return rep, nil
		}

		r.log.Warn().Str("room_id", roomID).Int("attempt", attempt+1).Msg("room actor stopped before processing command")
		r.evict(roomID, a)
	}
	return commandReply{}, fmt.Errorf("room %s: %w", roomID, domain.ErrActorUnavailable)
}

func (r *RoomRegistry) actorFor(ctx context.Context, roomID string) (*roomActor, error) {
	if a := r.lookup(roomID); a != nil {
		return a, nil
	}
	v, err, _ := r.loading.Do(roomID, func() (any, error) {
		if a := r.lookup(roomID); a != nil {
			return a, nil
		}
		return r.spawn(roomID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*roomActor), nil
}

func (r *RoomRegistry) lookup(roomID string) *roomActor {
	r.mu.RLock()
	a := r.actors[roomID]
	r.mu.RUnlock()
	if a == nil || !a.alive() {
		return nil
	}
	return a
}

// spawn loads the room and starts its actor. Callers hold the singleflight
// slot for roomID, so two spawns for one room never overlap.
func (r *RoomRegistry) spawn(roomID string) (*roomActor, error) {
	lctx, cancel := context.WithTimeout(r.ctx, r.cfg.PersistTimeout)
	defer cancel()

	room, err := r.store.FindByID(lctx, roomID)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w: %w", roomID, domain.ErrActorUnavailable, err)
	}

	a := newRoomActor(room, r.actorDeps())

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("room %s: %w: registry closed", roomID, domain.ErrActorUnavailable)
	}
	prev, restarted := r.actors[roomID]
	r.actors[roomID] = a
	r.mu.Unlock()

	if restarted {
		prev.shutdown()
		metrics.ActorRestartsTotal.Inc()
		r.log.Info().Str("room_id", roomID).Int64("version", room.Version).Msg("room actor recreated")
	} else {
		metrics.ActiveActors.Inc()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		a.run(r.ctx)
	}()
	return a, nil
}

func (r *RoomRegistry) actorDeps() actorDeps {
	deps := actorDeps{
		store:          r.store,
		sink:           r.sink,
		clock:          r.clock,
		log:            r.log,
		inboxSize:      r.cfg.InboxSize,
		persistRetries: r.cfg.PersistRetries,
		persistBackoff: r.cfg.PersistBackoff,
		persistTimeout: r.cfg.PersistTimeout,
	}
	if r.scheduler != nil {
		deps.onReschedule = r.scheduler.Schedule
	}
	return deps
}

// evict removes a from the map if it is still the registered actor for roomID.
func (r *RoomRegistry) evict(roomID string, a *roomActor) {
	r.mu.Lock()
	cur, ok := r.actors[roomID]
	if ok && cur == a {
		delete(r.actors, roomID)
		metrics.ActiveActors.Dec()
	}
	r.mu.Unlock()
	a.shutdown()
}

// Forget stops the actor for roomID, if any. Used before a room is purged.
func (r *RoomRegistry) Forget(roomID string) {
	r.mu.RLock()
	a, ok := r.actors[roomID]
	r.mu.RUnlock()
	if ok {
		r.evict(roomID, a)
	}
}

// ReapIdle stops actors of ended rooms that have no subscribers and have not
// handled a command for longer than the idle timeout. Dead actors are swept
// too. It returns the number of actors removed.
func (r *RoomRegistry) ReapIdle(now time.Time) int {
	r.mu.RLock()
	var victims []*roomActor
	for id, a := range r.actors {
		if !a.alive() {
			victims = append(victims, a)
			continue
		}
		if !a.snapshot.Load().IsEnded() {
			continue
		}
		if r.subscribers != nil && r.subscribers.SubscriberCount(id) > 0 {
			continue
		}
		if now.Sub(a.idleSince()) < r.cfg.IdleTimeout {
			continue
		}
		victims = append(victims, a)
	}
	r.mu.RUnlock()

	for _, a := range victims {
		r.evict(a.id, a)
	}
	if len(victims) > 0 {
		r.log.Debug().Int("count", len(victims)).Msg("idle room actors reaped")
	}
	return len(victims)
}

// ActiveCount returns the number of registered actors.
func (r *RoomRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Shutdown stops accepting new actors, lets every actor finish its current
// command and waits for them to exit or for ctx to expire.
func (r *RoomRegistry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	actors := make([]*roomActor, 0, len(r.actors))
	for _, a := range r.actors {
		actors = append(actors, a)
	}
	r.mu.Unlock()

	for _, a := range actors {
		a.shutdown()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	defer r.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("room registry shutdown: %w", ctx.Err())
	}
}
