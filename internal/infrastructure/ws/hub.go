// Package ws is the websocket connection gateway. The engine pushes to
// connections by id through Hub; the HTTP layer owns upgrades and frames.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrSlowConsumer       = errors.New("connection send buffer full")
)

// Hub tracks live connections by id and by user.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	byUser  map[string]map[string]struct{}
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[string]*Client),
		byUser:  make(map[string]map[string]struct{}),
	}
}

var _ ports.ConnectionGateway = (*Hub)(nil)

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	if h.byUser[c.UserID] == nil {
		h.byUser[c.UserID] = make(map[string]struct{})
	}
	h.byUser[c.UserID][c.ID] = struct{}{}
	h.mu.Unlock()

	metrics.LiveConnections.Inc()
	h.log.Debug().Str("connection_id", c.ID).Str("user_id", c.UserID).Msg("connection registered")
}

// Unregister removes c and closes it. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID]
	if ok {
		delete(h.clients, c.ID)
		if conns := h.byUser[c.UserID]; conns != nil {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(h.byUser, c.UserID)
			}
		}
	}
	h.mu.Unlock()

	c.Close()
	if ok {
		metrics.LiveConnections.Dec()
		h.log.Debug().Str("connection_id", c.ID).Msg("connection unregistered")
	}
}

// Push queues msg on the connection without blocking. A connection whose
// buffer is full is dropped; the client reconnects and refetches state.
func (h *Hub) Push(connectionID string, msg ports.OutboundMessage) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", msg.Type, err)
	}
	if !c.enqueue(data) {
		h.log.Warn().Str("connection_id", c.ID).Str("user_id", c.UserID).Msg("dropping slow connection")
		h.Unregister(c)
		return ErrSlowConsumer
	}
	return nil
}

func (h *Hub) ConnectionsForUser(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.byUser[userID]))
	for id := range h.byUser[userID] {
		out = append(out, id)
	}
	return out
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll disconnects every client. Used on shutdown, since hijacked
// connections are not closed by the HTTP server.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
}
