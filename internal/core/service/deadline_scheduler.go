package service

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

const defaultFireRetryDelay = 5 * time.Second

// RoomDirectory is what the scheduler needs from the registry.
type RoomDirectory interface {
	Finalize(ctx context.Context, roomID string) (*domain.RoomEnded, error)
	Snapshot(ctx context.Context, roomID string) (*domain.AuctionRoom, error)
}

type timerKind uint8

const (
	timerDeadline timerKind = iota
	timerEndingSoon
)

type timerKey struct {
	roomID string
	kind   timerKind
}

type timerEntry struct {
	key   timerKey
	at    time.Time
	index int
}

// timerHeap is a min-heap ordered by fire time.
type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// DeadlineScheduler fires Finalize for each room when its end time elapses
// and emits EndingSoon a fixed lead before that. One timer per (room, kind);
// scheduling a room again replaces its timers.
type DeadlineScheduler struct {
	rooms      RoomDirectory
	sink       ports.EventSink
	lead       time.Duration
	retryDelay time.Duration
	clock      func() time.Time
	log        zerolog.Logger

	mu     sync.Mutex
	timers timerHeap
	byKey  map[timerKey]*timerEntry
	wake   chan struct{}
	fires  sync.WaitGroup
}

// NewDeadlineScheduler builds a scheduler. A lead of zero disables EndingSoon.
func NewDeadlineScheduler(rooms RoomDirectory, sink ports.EventSink, lead time.Duration, clock func() time.Time, log zerolog.Logger) *DeadlineScheduler {
	if clock == nil {
		clock = time.Now
	}
	return &DeadlineScheduler{
		rooms:      rooms,
		sink:       sink,
		lead:       lead,
		retryDelay: defaultFireRetryDelay,
		clock:      clock,
		log:        log,
		byKey:      make(map[timerKey]*timerEntry),
		wake:       make(chan struct{}, 1),
	}
}

// Schedule arms (or re-arms) the deadline and ending-soon timers of an active room.
func (s *DeadlineScheduler) Schedule(room *domain.AuctionRoom) {
	if room.IsEnded() {
		s.Cancel(room.ID)
		return
	}

	s.mu.Lock()
	s.upsert(timerKey{room.ID, timerDeadline}, room.EndTime)
	soon := room.EndTime.Add(-s.lead)
	if s.lead > 0 && soon.After(s.clock()) {
		s.upsert(timerKey{room.ID, timerEndingSoon}, soon)
	} else {
		s.remove(timerKey{room.ID, timerEndingSoon})
	}
	s.mu.Unlock()
	s.signal()
}

// Cancel drops every timer for roomID.
func (s *DeadlineScheduler) Cancel(roomID string) {
	s.mu.Lock()
	s.remove(timerKey{roomID, timerDeadline})
	s.remove(timerKey{roomID, timerEndingSoon})
	s.mu.Unlock()
	s.signal()
}

// Pending returns the number of armed timers.
func (s *DeadlineScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// HandleEvent disarms a room's timers once it has ended, whatever ended it.
func (s *DeadlineScheduler) HandleEvent(_ context.Context, ev domain.Event) error {
	if ev.Type == domain.EventRoomEnded {
		s.Cancel(ev.RoomID)
	}
	return nil
}

// Seed arms timers for every active room in the store. Rooms whose end time
// has already passed are finalized before Seed returns, so the caller can
// start accepting bids afterwards. It returns the number of rooms finalized.
func (s *DeadlineScheduler) Seed(ctx context.Context, store ports.RoomRepository) (int, error) {
	rooms, err := store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	finalized := 0
	now := s.clock()
	for _, room := range rooms {
		if now.Before(room.EndTime) {
			s.Schedule(room)
			continue
		}
		if _, err := s.rooms.Finalize(ctx, room.ID); err != nil {
			s.log.Error().Err(err).Str("room_id", room.ID).Msg("finalize overdue room failed, will retry")
			s.rearm(timerKey{room.ID, timerDeadline}, now.Add(s.retryDelay))
			continue
		}
		finalized++
	}

	s.log.Info().Int("active", len(rooms)).Int("finalized", finalized).Msg("deadline scheduler seeded")
	return finalized, nil
}

// Run fires due timers until ctx is cancelled, then waits for in-flight fires.
func (s *DeadlineScheduler) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	defer s.fires.Wait()

	for {
		due, wait := s.popDue()
		for _, e := range due {
			s.fires.Add(1)
			go func(e *timerEntry) {
				defer s.fires.Done()
				s.fire(ctx, e)
			}(e)
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

// popDue removes every entry whose time has come and reports how long to
// sleep until the next one.
func (s *DeadlineScheduler) popDue() ([]*timerEntry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var due []*timerEntry
	for len(s.timers) > 0 && !s.timers[0].at.After(now) {
		e := heap.Pop(&s.timers).(*timerEntry)
		delete(s.byKey, e.key)
		due = append(due, e)
	}
	metrics.ScheduledTimers.Set(float64(len(s.timers)))

	wait := time.Hour
	if len(s.timers) > 0 {
		wait = s.timers[0].at.Sub(now)
	}
	return due, wait
}

func (s *DeadlineScheduler) fire(ctx context.Context, e *timerEntry) {
	switch e.key.kind {
	case timerDeadline:
		s.fireDeadline(ctx, e.key.roomID)
	case timerEndingSoon:
		s.fireEndingSoon(ctx, e.key.roomID)
	}
}

func (s *DeadlineScheduler) fireDeadline(ctx context.Context, roomID string) {
	_, err := s.rooms.Finalize(ctx, roomID)
	switch {
	case err == nil:
		return
	case errors.Is(err, domain.ErrRoomNotFound):
		s.log.Warn().Str("room_id", roomID).Msg("deadline fired for unknown room")
	case errors.Is(err, domain.ErrRoomStillOpen):
		// End time moved after the timer was armed.
		room, snapErr := s.rooms.Snapshot(ctx, roomID)
		if snapErr != nil {
			s.log.Error().Err(snapErr).Str("room_id", roomID).Msg("reload room after early fire failed")
			s.rearm(timerKey{roomID, timerDeadline}, s.clock().Add(s.retryDelay))
			return
		}
		s.Schedule(room)
	case ctx.Err() != nil:
		return
	default:
		s.log.Error().Err(err).Str("room_id", roomID).Msg("finalize failed, retrying")
		s.rearm(timerKey{roomID, timerDeadline}, s.clock().Add(s.retryDelay))
	}
}

func (s *DeadlineScheduler) fireEndingSoon(ctx context.Context, roomID string) {
	room, err := s.rooms.Snapshot(ctx, roomID)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("ending soon skipped")
		return
	}
	if room.IsEnded() {
		return
	}
	s.sink.Emit(domain.Event{
		Type:       domain.EventEndingSoon,
		RoomID:     room.ID,
		Sequence:   room.Version,
		OccurredAt: s.clock().UTC(),
		EndingSoon: &domain.EndingSoon{
			RoomID:       room.ID,
			EndTime:      room.EndTime,
			CurrentPrice: room.CurrentPrice,
			Title:        room.Title,
		},
	})
}

// rearm schedules a timer only if nothing newer replaced it meanwhile.
func (s *DeadlineScheduler) rearm(key timerKey, at time.Time) {
	s.mu.Lock()
	if _, ok := s.byKey[key]; !ok {
		s.upsert(key, at)
	}
	s.mu.Unlock()
	s.signal()
}

func (s *DeadlineScheduler) upsert(key timerKey, at time.Time) {
	if e, ok := s.byKey[key]; ok {
		e.at = at
		heap.Fix(&s.timers, e.index)
		return
	}
	e := &timerEntry{key: key, at: at}
	heap.Push(&s.timers, e)
	s.byKey[key] = e
}

func (s *DeadlineScheduler) remove(key timerKey) {
	e, ok := s.byKey[key]
	if !ok {
		return
	}
	heap.Remove(&s.timers, e.index)
	delete(s.byKey, key)
}

func (s *DeadlineScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
