package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

var discardLogger = zerolog.Nop()

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Room store
// ---------------------------------------------------------------------------

var errStoreDown = errors.New("store unavailable")

type memRoomStore struct {
	mu    sync.Mutex
	rooms map[string]*domain.AuctionRoom

	appendFailures int   // next N AppendBid calls fail
	appendErr      error // returned by every AppendBid while set
	appendCalls    int
	markEndedCalls int
}

func newMemRoomStore(rooms ...*domain.AuctionRoom) *memRoomStore {
	s := &memRoomStore{rooms: make(map[string]*domain.AuctionRoom)}
	for _, r := range rooms {
		s.rooms[r.ID] = r.Clone()
	}
	return s
}

func (s *memRoomStore) Create(_ context.Context, room *domain.AuctionRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room.Clone()
	return nil
}

func (s *memRoomStore) FindByID(_ context.Context, roomID string) (*domain.AuctionRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (s *memRoomStore) check(roomID string, expectedVersion int64) (*domain.AuctionRoom, error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	if r.Version != expectedVersion || r.IsEnded() {
		return nil, domain.ErrVersionConflict
	}
	return r, nil
}

func (s *memRoomStore) AppendBid(_ context.Context, roomID string, bid domain.Bid, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendCalls++
	if s.appendErr != nil {
		return s.appendErr
	}
	if s.appendFailures > 0 {
		s.appendFailures--
		return errStoreDown
	}
	r, err := s.check(roomID, expectedVersion)
	if err != nil {
		return err
	}
	r.Bids = append(r.Bids, bid)
	r.CurrentPrice = bid.Amount
	r.Version++
	return nil
}

func (s *memRoomStore) MarkEnded(_ context.Context, roomID, winnerID string, endedAt time.Time, reason domain.EndReason, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markEndedCalls++
	r, err := s.check(roomID, expectedVersion)
	if err != nil {
		return err
	}
	r.Status = domain.RoomStatusEnded
	r.WinnerID = winnerID
	r.EndedAt = &endedAt
	r.EndReason = reason
	r.Version++
	return nil
}

func (s *memRoomStore) UpdateDetails(_ context.Context, room *domain.AuctionRoom, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.check(room.ID, expectedVersion)
	if err != nil {
		return err
	}
	r.Title = room.Title
	r.Description = room.Description
	r.Category = room.Category
	r.Tags = append([]string(nil), room.Tags...)
	r.EndTime = room.EndTime
	r.Version++
	return nil
}

func (s *memRoomStore) ListActive(_ context.Context) ([]*domain.AuctionRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.AuctionRoom
	for _, r := range s.rooms {
		if !r.IsEnded() {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRoomStore) ListEndedBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, r := range s.rooms {
		if r.IsEnded() && r.EndedAt != nil && r.EndedAt.Before(cutoff) && len(out) < limit {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *memRoomStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
	return nil
}

// bumpVersion simulates a write by another process.
func (s *memRoomStore) bumpVersion(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID].Version++
}

func (s *memRoomStore) failNextAppends(n int) {
	s.mu.Lock()
	s.appendFailures = n
	s.mu.Unlock()
}

func (s *memRoomStore) stored(roomID string) *domain.AuctionRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID].Clone()
}

// ---------------------------------------------------------------------------
// Event sink
// ---------------------------------------------------------------------------

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Emit(ev domain.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) ofType(t domain.EventType) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Watches, notifications, dedup, gateway
// ---------------------------------------------------------------------------

type memWatchRepo struct {
	mu      sync.Mutex
	watches map[string]*domain.WatchSubscription // user|room
	listErr error
}

func newMemWatchRepo() *memWatchRepo {
	return &memWatchRepo{watches: make(map[string]*domain.WatchSubscription)}
}

func watchKey(userID, roomID string) string { return userID + "|" + roomID }

func (r *memWatchRepo) Upsert(_ context.Context, w *domain.WatchSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *w
	if prev, ok := r.watches[watchKey(w.UserID, w.RoomID)]; ok {
		c.AddedAt = prev.AddedAt
	}
	r.watches[watchKey(w.UserID, w.RoomID)] = &c
	return nil
}

func (r *memWatchRepo) EnsureExists(_ context.Context, w *domain.WatchSubscription) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[watchKey(w.UserID, w.RoomID)]; ok {
		return false, nil
	}
	c := *w
	r.watches[watchKey(w.UserID, w.RoomID)] = &c
	return true, nil
}

func (r *memWatchRepo) Delete(_ context.Context, userID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.watches[watchKey(userID, roomID)]; !ok {
		return domain.ErrWatchNotFound
	}
	delete(r.watches, watchKey(userID, roomID))
	return nil
}

func (r *memWatchRepo) DeleteByRoom(_ context.Context, roomID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, w := range r.watches {
		if w.RoomID == roomID {
			delete(r.watches, k)
			n++
		}
	}
	return n, nil
}

func (r *memWatchRepo) ListByRoom(_ context.Context, roomID string) ([]*domain.WatchSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*domain.WatchSubscription
	for _, w := range r.watches {
		if w.RoomID == roomID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memWatchRepo) ListByUser(_ context.Context, userID string) ([]*domain.WatchSubscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WatchSubscription
	for _, w := range r.watches {
		if w.UserID == userID {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memWatchRepo) get(userID, roomID string) (*domain.WatchSubscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[watchKey(userID, roomID)]
	return w, ok
}

type memNotificationRepo struct {
	mu        sync.Mutex
	items     []*domain.Notification
	insertErr error
}

func (r *memNotificationRepo) Insert(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	c := *n
	r.items = append(r.items, &c)
	return nil
}

func (r *memNotificationRepo) ListByRecipient(_ context.Context, recipientID string, f ports.NotificationFilter) ([]*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for i := len(r.items) - 1; i >= 0 && len(out) < f.Limit; i-- {
		n := r.items[i]
		if n.RecipientID != recipientID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	return out, nil
}

func (r *memNotificationRepo) CountUnread(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, it := range r.items {
		if it.RecipientID == recipientID && !it.IsRead {
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) MarkRead(_ context.Context, recipientID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range r.items {
		if it.ID == id && it.RecipientID == recipientID {
			it.IsRead = true
			return nil
		}
	}
	return domain.ErrNotificationNotFound
}

func (r *memNotificationRepo) MarkAllRead(_ context.Context, recipientID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, it := range r.items {
		if it.RecipientID == recipientID && !it.IsRead {
			it.IsRead = true
			n++
		}
	}
	return n, nil
}

func (r *memNotificationRepo) forRecipient(recipientID string) []*domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, it := range r.items {
		if it.RecipientID == recipientID {
			out = append(out, it)
		}
	}
	return out
}

type memDedup struct {
	mu     sync.Mutex
	keys   map[string]bool
	dupErr error
}

func newMemDedup() *memDedup { return &memDedup{keys: make(map[string]bool)} }

func (d *memDedup) IsDuplicate(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dupErr != nil {
		return false, d.dupErr
	}
	return d.keys[key], nil
}

func (d *memDedup) Mark(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
	return nil
}

type recordingGateway struct {
	mu       sync.Mutex
	pushed   map[string][]ports.OutboundMessage
	byUser   map[string][]string
	failConn map[string]bool
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{
		pushed:   make(map[string][]ports.OutboundMessage),
		byUser:   make(map[string][]string),
		failConn: make(map[string]bool),
	}
}

var errConnGone = errors.New("connection closed")

func (g *recordingGateway) Push(connectionID string, msg ports.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failConn[connectionID] {
		return errConnGone
	}
	g.pushed[connectionID] = append(g.pushed[connectionID], msg)
	return nil
}

func (g *recordingGateway) ConnectionsForUser(userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.byUser[userID]...)
}

func (g *recordingGateway) messages(connectionID string) []ports.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ports.OutboundMessage(nil), g.pushed[connectionID]...)
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func activeRoom(id, seller string, start string, endTime time.Time) *domain.AuctionRoom {
	return &domain.AuctionRoom{
		ID:            id,
		SellerID:      seller,
		Title:         "Vintage camera",
		StartingPrice: dec(start),
		CurrentPrice:  dec(start),
		EndTime:       endTime,
		Status:        domain.RoomStatusActive,
		Bids:          []domain.Bid{},
		CreatedAt:     endTime.Add(-24 * time.Hour),
	}
}

// waitFor polls cond until it holds or a second has passed.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
