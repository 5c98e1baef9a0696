package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

// Broadcaster fans room events out to every live connection subscribed to
// the room. Stored watch preferences do not apply here.
type Broadcaster struct {
	gateway ports.ConnectionGateway
	log     zerolog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // room id -> connection ids
	conns map[string]map[string]struct{} // connection id -> room ids
}

func NewBroadcaster(gateway ports.ConnectionGateway, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		gateway: gateway,
		log:     log,
		rooms:   make(map[string]map[string]struct{}),
		conns:   make(map[string]map[string]struct{}),
	}
}

func (b *Broadcaster) Subscribe(roomID, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[string]struct{})
	}
	b.rooms[roomID][connectionID] = struct{}{}
	if b.conns[connectionID] == nil {
		b.conns[connectionID] = make(map[string]struct{})
	}
	b.conns[connectionID][roomID] = struct{}{}
}

func (b *Broadcaster) Unsubscribe(roomID, connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(roomID, connectionID)
}

// UnsubscribeAll removes every subscription of a closed connection.
func (b *Broadcaster) UnsubscribeAll(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for roomID := range b.conns[connectionID] {
		b.drop(roomID, connectionID)
	}
}

func (b *Broadcaster) drop(roomID, connectionID string) {
	if subs, ok := b.rooms[roomID]; ok {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(b.rooms, roomID)
		}
	}
	if rooms, ok := b.conns[connectionID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(b.conns, connectionID)
		}
	}
}

func (b *Broadcaster) SubscriberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomID])
}

// HandleEvent pushes ev to the room's subscribers. The event pipeline calls
// it from a single worker per room, so pushes keep emission order.
func (b *Broadcaster) HandleEvent(_ context.Context, ev domain.Event) error {
	b.mu.RLock()
	targets := make([]string, 0, len(b.rooms[ev.RoomID]))
	for id := range b.rooms[ev.RoomID] {
		targets = append(targets, id)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	msg := ports.OutboundMessage{
		Type:    string(ev.Type),
		RoomID:  ev.RoomID,
		Seq:     ev.Sequence,
		Payload: ev.Payload(),
	}
	for _, id := range targets {
		if err := b.gateway.Push(id, msg); err != nil {
			metrics.LivePushFailuresTotal.Inc()
			b.log.Debug().Err(err).Str("room_id", ev.RoomID).Str("connection_id", id).Msg("live push failed")
		}
	}
	return nil
}
