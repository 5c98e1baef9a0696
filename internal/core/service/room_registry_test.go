package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type registryFixture struct {
	clock    *fakeClock
	store    *memRoomStore
	sink     *recordingSink
	registry *RoomRegistry
}

func newRegistryFixture(t *testing.T, rooms ...*domain.AuctionRoom) *registryFixture {
	t.Helper()
	f := &registryFixture{
		clock: newFakeClock(t0),
		store: newMemRoomStore(rooms...),
		sink:  &recordingSink{},
	}
	f.registry = newTestRegistry(f.store, f.sink, f.clock)
	t.Cleanup(func() { _ = f.registry.Shutdown(context.Background()) })
	return f
}

func newTestRegistry(store ports.RoomRepository, sink ports.EventSink, clock *fakeClock) *RoomRegistry {
	return NewRoomRegistry(RegistryConfig{
		PersistRetries: 2,
		PersistBackoff: time.Millisecond,
		IdleTimeout:    time.Minute,
		MaxRestarts:    2,
	}, store, sink, clock.Now, discardLogger)
}

func bid(roomID, bidder, amount, commandID string) ports.PlaceBidInput {
	return ports.PlaceBidInput{RoomID: roomID, BidderID: bidder, Amount: dec(amount), CommandID: commandID}
}

// mustBid places a bid that is expected to be accepted.
func mustBid(t *testing.T, r *RoomRegistry, in ports.PlaceBidInput) *ports.BidResult {
	t.Helper()
	res, err := r.PlaceBid(context.Background(), in)
	if err != nil {
		t.Fatalf("bid %s by %s: unexpected error: %v", in.Amount, in.BidderID, err)
	}
	return res
}

func expectRejected(t *testing.T, err error, reason error, currentPrice string) {
	t.Helper()
	if !errors.Is(err, reason) {
		t.Fatalf("expected %v, got %v", reason, err)
	}
	var rej *domain.BidRejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("expected *domain.BidRejectedError, got %T", err)
	}
	if !rej.CurrentPrice.Equal(dec(currentPrice)) {
		t.Errorf("current price: got %s, want %s", rej.CurrentPrice, currentPrice)
	}
}

func expectPrice(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s: got %s, want %s", label, got, want)
	}
}

func storedBids(t *testing.T, s *memRoomStore, roomID string, want int) *domain.AuctionRoom {
	t.Helper()
	room := s.stored(roomID)
	if len(room.Bids) != want {
		t.Fatalf("expected %d stored bids, got %d", want, len(room.Bids))
	}
	return room
}

// ---------------------------------------------------------------------------
// Bid acceptance
// ---------------------------------------------------------------------------

func TestRegistry_RaceScenario(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	ctx := context.Background()

	a := mustBid(t, f.registry, bid("r1", "A", "150", "a-1"))
	expectPrice(t, "A new price", a.NewPrice, "150")
	if a.PreviousHighBidder != "" {
		t.Errorf("first bid should have no previous bidder, got %q", a.PreviousHighBidder)
	}

	_, err := f.registry.PlaceBid(ctx, bid("r1", "B", "140", "b-1"))
	expectRejected(t, err, domain.ErrBidTooLow, "150")

	c := mustBid(t, f.registry, bid("r1", "C", "160", "c-1"))
	if c.PreviousHighBidder != "A" {
		t.Errorf("expected previous bidder A, got %q", c.PreviousHighBidder)
	}

	stored := storedBids(t, f.store, "r1", 2)
	expectPrice(t, "stored price", stored.CurrentPrice, "160")
	if got := stored.HighestBidderID(); got != "C" {
		t.Errorf("expected leader C, got %q", got)
	}
	if n := len(f.sink.ofType(domain.EventBidAccepted)); n != 2 {
		t.Errorf("expected 2 BidAccepted events, got %d", n)
	}
}

func TestRegistry_EqualBidIsTooLow(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	_, err := f.registry.PlaceBid(context.Background(), bid("r1", "A", "100", ""))
	expectRejected(t, err, domain.ErrBidTooLow, "100")
}

func TestRegistry_SelfBidRejected(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	_, err := f.registry.PlaceBid(context.Background(), bid("r1", "seller", "500", ""))
	expectRejected(t, err, domain.ErrSelfBid, "100")
	storedBids(t, f.store, "r1", 0)
}

func TestRegistry_UnknownRoom(t *testing.T) {
	f := newRegistryFixture(t)

	_, err := f.registry.PlaceBid(context.Background(), bid("missing", "A", "10", ""))
	if !errors.Is(err, domain.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if n := f.registry.ActiveCount(); n != 0 {
		t.Errorf("no actor should be registered for a missing room, got %d", n)
	}
}

func TestRegistry_ConcurrentBidsStrictlyIncrease(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	const n = 64
	amounts := rand.New(rand.NewSource(7)).Perm(n)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := fmt.Sprintf("%d", 101+amounts[i])
			_, err := f.registry.PlaceBid(context.Background(), bid("r1", fmt.Sprintf("u%d", i), amount, fmt.Sprintf("cmd-%d", i)))
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if !errors.Is(err, domain.ErrBidTooLow) {
			t.Fatalf("only BidTooLow rejections are expected, got %v", err)
		}
	}

	accepted := f.sink.ofType(domain.EventBidAccepted)
	for i := 1; i < len(accepted); i++ {
		prev, cur := accepted[i-1].BidAccepted, accepted[i].BidAccepted
		if !cur.NewPrice.GreaterThan(prev.NewPrice) {
			t.Fatalf("event %d: price %s not above %s", i, cur.NewPrice, prev.NewPrice)
		}
		if !cur.AcceptedAt.After(prev.AcceptedAt) {
			t.Fatalf("event %d: accepted_at %v not after %v", i, cur.AcceptedAt, prev.AcceptedAt)
		}
		if accepted[i].Sequence <= accepted[i-1].Sequence {
			t.Fatalf("event %d: sequence %d not above %d", i, accepted[i].Sequence, accepted[i-1].Sequence)
		}
		if cur.PreviousHighBidder != prev.BidderID {
			t.Fatalf("event %d: previous bidder %q, want %q", i, cur.PreviousHighBidder, prev.BidderID)
		}
	}

	stored := storedBids(t, f.store, "r1", len(accepted))
	expectPrice(t, "final price", stored.CurrentPrice, fmt.Sprintf("%d", 100+n))
	expectPrice(t, "last event price", accepted[len(accepted)-1].BidAccepted.NewPrice, fmt.Sprintf("%d", 100+n))
}

// ---------------------------------------------------------------------------
// Idempotency
// ---------------------------------------------------------------------------

func TestRegistry_CommandIDIsIdempotent(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	first := mustBid(t, f.registry, bid("r1", "A", "120", "cmd-1"))
	if first.Replayed {
		t.Fatal("first submission must not be a replay")
	}

	again := mustBid(t, f.registry, bid("r1", "A", "120", "cmd-1"))
	if !again.Replayed {
		t.Error("expected Replayed=true on resubmission")
	}
	if again.BidID != first.BidID || !again.AcceptedAt.Equal(first.AcceptedAt) {
		t.Errorf("replay returned a different result: %+v vs %+v", again, first)
	}
	storedBids(t, f.store, "r1", 1)
	if n := len(f.sink.ofType(domain.EventBidAccepted)); n != 1 {
		t.Errorf("expected 1 BidAccepted event, got %d", n)
	}

	// A fresh registry rebuilds the applied set from the stored bids.
	other := newTestRegistry(f.store, &recordingSink{}, f.clock)
	defer other.Shutdown(context.Background())
	replay := mustBid(t, other, bid("r1", "A", "120", "cmd-1"))
	if !replay.Replayed || replay.BidID != first.BidID {
		t.Errorf("expected replay of %s after reload, got %+v", first.BidID, replay)
	}
	storedBids(t, f.store, "r1", 1)
}

func TestRegistry_CommandIDIsScopedToBidder(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	first := mustBid(t, f.registry, bid("r1", "A", "150", "cmd-1"))

	second := mustBid(t, f.registry, bid("r1", "B", "200", "cmd-1"))
	if second.Replayed {
		t.Fatal("another bidder's command id must not replay A's result")
	}
	if second.BidderID != "B" || second.BidID == first.BidID {
		t.Errorf("expected a new bid by B, got %+v", second)
	}
	if second.PreviousHighBidder != "A" {
		t.Errorf("expected previous bidder A, got %q", second.PreviousHighBidder)
	}

	stored := storedBids(t, f.store, "r1", 2)
	expectPrice(t, "stored price", stored.CurrentPrice, "200")

	// The rebuilt actor keeps both bidders' ids apart as well.
	other := newTestRegistry(f.store, &recordingSink{}, f.clock)
	defer other.Shutdown(context.Background())
	replay := mustBid(t, other, bid("r1", "A", "150", "cmd-1"))
	if !replay.Replayed || replay.BidID != first.BidID || replay.BidderID != "A" {
		t.Errorf("expected replay of A's bid, got %+v", replay)
	}
}

// ---------------------------------------------------------------------------
// Finalization
// ---------------------------------------------------------------------------

func TestRegistry_FinalizeIsIdempotent(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	ctx := context.Background()

	mustBid(t, f.registry, bid("r1", "A", "150", ""))
	mustBid(t, f.registry, bid("r1", "B", "175", ""))

	if _, err := f.registry.Finalize(ctx, "r1"); !errors.Is(err, domain.ErrRoomStillOpen) {
		t.Fatalf("expected ErrRoomStillOpen before the end time, got %v", err)
	}

	f.clock.Advance(time.Hour)
	first, err := f.registry.Finalize(ctx, "r1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	second, err := f.registry.Finalize(ctx, "r1")
	if err != nil {
		t.Fatalf("second finalize: %v", err)
	}

	if first.WinnerID != "B" || second.WinnerID != "B" {
		t.Errorf("expected winner B, got %q and %q", first.WinnerID, second.WinnerID)
	}
	expectPrice(t, "final price", first.FinalPrice, "175")
	if !first.EndedAt.Equal(second.EndedAt) {
		t.Errorf("ended_at differs between calls: %v vs %v", first.EndedAt, second.EndedAt)
	}
	if len(first.Bidders) != 2 {
		t.Errorf("expected 2 bidders, got %v", first.Bidders)
	}
	if n := len(f.sink.ofType(domain.EventRoomEnded)); n != 1 {
		t.Errorf("expected exactly 1 RoomEnded event, got %d", n)
	}
	if f.store.markEndedCalls != 1 {
		t.Errorf("expected 1 MarkEnded write, got %d", f.store.markEndedCalls)
	}

	// Same payload after a restart, still without a second event.
	other := newTestRegistry(f.store, f.sink, f.clock)
	defer other.Shutdown(context.Background())
	third, err := other.Finalize(ctx, "r1")
	if err != nil {
		t.Fatalf("finalize after reload: %v", err)
	}
	if third.WinnerID != first.WinnerID || !third.FinalPrice.Equal(first.FinalPrice) || !third.EndedAt.Equal(first.EndedAt) {
		t.Errorf("reloaded result differs: %+v vs %+v", third, first)
	}
	if n := len(f.sink.ofType(domain.EventRoomEnded)); n != 1 {
		t.Errorf("reload must not emit RoomEnded again, got %d events", n)
	}
}

func TestRegistry_FinalizeWithoutBidsHasNoWinner(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(-time.Minute)))

	ended, err := f.registry.Finalize(context.Background(), "r1")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if ended.WinnerID != "" {
		t.Errorf("expected no winner, got %q", ended.WinnerID)
	}
	expectPrice(t, "final price", ended.FinalPrice, "100")
	if ended.Reason != domain.EndReasonExpired {
		t.Errorf("expected reason %q, got %q", domain.EndReasonExpired, ended.Reason)
	}
}

func TestRegistry_BidAfterEndTimeFinalizes(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(-time.Second)))

	_, err := f.registry.PlaceBid(context.Background(), bid("r1", "A", "200", ""))
	expectRejected(t, err, domain.ErrAuctionEnded, "100")

	stored := storedBids(t, f.store, "r1", 0)
	if !stored.IsEnded() {
		t.Error("late bid should have ended the room")
	}
	if n := len(f.sink.ofType(domain.EventRoomEnded)); n != 1 {
		t.Errorf("expected 1 RoomEnded event, got %d", n)
	}

	_, err = f.registry.PlaceBid(context.Background(), bid("r1", "A", "300", ""))
	if !errors.Is(err, domain.ErrAuctionEnded) {
		t.Errorf("expected ErrAuctionEnded, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Store failures
// ---------------------------------------------------------------------------

func TestRegistry_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	ctx := context.Background()

	mustBid(t, f.registry, bid("r1", "A", "120", "a-1"))

	f.store.failNextAppends(2)
	_, err := f.registry.PlaceBid(ctx, bid("r1", "B", "130", "b-1"))
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if n := len(f.sink.ofType(domain.EventBidAccepted)); n != 1 {
		t.Errorf("failed write must not emit BidAccepted, got %d events", n)
	}

	snap, err := f.registry.Snapshot(ctx, "r1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	expectPrice(t, "snapshot price", snap.CurrentPrice, "120")
	if len(snap.Bids) != 1 {
		t.Errorf("expected 1 bid in snapshot, got %d", len(snap.Bids))
	}

	// Retrying the same command against the recreated actor succeeds.
	res := mustBid(t, f.registry, bid("r1", "B", "130", "b-1"))
	if res.Replayed || res.PreviousHighBidder != "A" {
		t.Errorf("unexpected retry result: %+v", res)
	}
	expectPrice(t, "stored price", f.store.stored("r1").CurrentPrice, "130")
}

func TestRegistry_UnencodableAmountKeepsActorHealthy(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	ctx := context.Background()

	mustBid(t, f.registry, bid("r1", "A", "120", ""))
	f.registry.mu.RLock()
	before := f.registry.actors["r1"]
	f.registry.mu.RUnlock()

	f.store.appendErr = fmt.Errorf("encode amount: %w", domain.ErrInvalidAmount)
	calls := f.store.appendCalls
	_, err := f.registry.PlaceBid(ctx, bid("r1", "B", "130", "b-1"))
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if errors.Is(err, domain.ErrPersistence) {
		t.Errorf("an unencodable amount is not a persistence failure: %v", err)
	}
	if got := f.store.appendCalls - calls; got != 1 {
		t.Errorf("expected a single write attempt, got %d", got)
	}

	f.store.appendErr = nil
	if res := mustBid(t, f.registry, bid("r1", "B", "130", "b-1")); res.Replayed {
		t.Error("rejected command must not be cached as applied")
	}

	f.registry.mu.RLock()
	after := f.registry.actors["r1"]
	f.registry.mu.RUnlock()
	if after != before || !after.alive() {
		t.Error("actor should not have been restarted")
	}
}

func TestRegistry_VersionConflictRehydrates(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))

	mustBid(t, f.registry, bid("r1", "A", "120", ""))

	f.store.bumpVersion("r1")
	_, err := f.registry.PlaceBid(context.Background(), bid("r1", "B", "130", ""))
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrPersistence wrapping ErrVersionConflict, got %v", err)
	}

	mustBid(t, f.registry, bid("r1", "B", "130", ""))
	storedBids(t, f.store, "r1", 2)
}

func TestRegistry_SnapshotSurvivesReload(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	ctx := context.Background()

	for i, amount := range []string{"110", "125.50", "140"} {
		mustBid(t, f.registry, bid("r1", fmt.Sprintf("u%d", i), amount, fmt.Sprintf("c%d", i)))
	}
	before, err := f.registry.Snapshot(ctx, "r1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	other := newTestRegistry(f.store, &recordingSink{}, f.clock)
	defer other.Shutdown(context.Background())
	after, err := other.Snapshot(ctx, "r1")
	if err != nil {
		t.Fatalf("snapshot after reload: %v", err)
	}

	if before.Version != after.Version {
		t.Errorf("version: got %d, want %d", after.Version, before.Version)
	}
	expectPrice(t, "reloaded price", after.CurrentPrice, before.CurrentPrice.String())
	if len(after.Bids) != len(before.Bids) {
		t.Fatalf("expected %d bids after reload, got %d", len(before.Bids), len(after.Bids))
	}
	for i := range before.Bids {
		b, a := before.Bids[i], after.Bids[i]
		if b.ID != a.ID || !b.Amount.Equal(a.Amount) || !b.AcceptedAt.Equal(a.AcceptedAt) {
			t.Errorf("bid %d differs after reload: %+v vs %+v", i, a, b)
		}
	}
}

// ---------------------------------------------------------------------------
// Cancel and update
// ---------------------------------------------------------------------------

func TestRegistry_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("seller before any bid", func(t *testing.T) {
		f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
		ended, err := f.registry.Cancel(ctx, ports.CancelRoomInput{RoomID: "r1", ActorID: "seller", ActorRole: domain.RoleUser})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if ended.Reason != domain.EndReasonCancelled {
			t.Errorf("expected reason %q, got %q", domain.EndReasonCancelled, ended.Reason)
		}
		if !f.store.stored("r1").IsEnded() {
			t.Error("room should be ended in the store")
		}
	})

	t.Run("seller after a bid", func(t *testing.T) {
		f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
		mustBid(t, f.registry, bid("r1", "A", "110", ""))
		_, err := f.registry.Cancel(ctx, ports.CancelRoomInput{RoomID: "r1", ActorID: "seller", ActorRole: domain.RoleUser})
		if !errors.Is(err, domain.ErrRoomHasBids) {
			t.Errorf("expected ErrRoomHasBids, got %v", err)
		}
	})

	t.Run("stranger", func(t *testing.T) {
		f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
		_, err := f.registry.Cancel(ctx, ports.CancelRoomInput{RoomID: "r1", ActorID: "mallory", ActorRole: domain.RoleUser})
		if !errors.Is(err, domain.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("admin with bids has no winner", func(t *testing.T) {
		f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
		mustBid(t, f.registry, bid("r1", "A", "110", ""))
		ended, err := f.registry.Cancel(ctx, ports.CancelRoomInput{RoomID: "r1", ActorID: "root", ActorRole: domain.RoleAdmin})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if ended.WinnerID != "" {
			t.Errorf("cancelled room must have no winner, got %q", ended.WinnerID)
		}
		if len(ended.Bidders) != 1 || ended.Bidders[0] != "A" {
			t.Errorf("expected bidders [A], got %v", ended.Bidders)
		}

		_, err = f.registry.PlaceBid(ctx, bid("r1", "B", "500", ""))
		if !errors.Is(err, domain.ErrAuctionEnded) {
			t.Errorf("expected ErrAuctionEnded, got %v", err)
		}
	})
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []*domain.AuctionRoom
}

func (s *recordingScheduler) Schedule(room *domain.AuctionRoom) {
	s.mu.Lock()
	s.scheduled = append(s.scheduled, room)
	s.mu.Unlock()
}

func (s *recordingScheduler) Cancel(string) {}

func TestRegistry_UpdateEndTime(t *testing.T) {
	f := newRegistryFixture(t, activeRoom("r1", "seller", "100", t0.Add(time.Hour)))
	sched := &recordingScheduler{}
	f.registry.SetScheduler(sched)
	ctx := context.Background()

	newEnd := t0.Add(2 * time.Hour)
	title := "Vintage camera, boxed"
	room, err := f.registry.Update(ctx, ports.UpdateRoomInput{RoomID: "r1", ActorID: "seller", Title: &title, EndTime: &newEnd})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !room.EndTime.Equal(newEnd) {
		t.Errorf("end time: got %v, want %v", room.EndTime, newEnd)
	}
	if got := f.store.stored("r1").Title; got != title {
		t.Errorf("stored title: got %q, want %q", got, title)
	}
	if len(sched.scheduled) != 1 {
		t.Errorf("expected the deadline to be re-armed once, got %d", len(sched.scheduled))
	}

	mustBid(t, f.registry, bid("r1", "A", "110", ""))

	later := t0.Add(3 * time.Hour)
	_, err = f.registry.Update(ctx, ports.UpdateRoomInput{RoomID: "r1", ActorID: "seller", EndTime: &later})
	if !errors.Is(err, domain.ErrRoomHasBids) {
		t.Errorf("expected ErrRoomHasBids, got %v", err)
	}

	_, err = f.registry.Update(ctx, ports.UpdateRoomInput{RoomID: "r1", ActorID: "mallory", Title: &title})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Idle reaping
// ---------------------------------------------------------------------------

type fixedSubscribers map[string]int

func (s fixedSubscribers) SubscriberCount(roomID string) int { return s[roomID] }

func TestRegistry_ReapIdle(t *testing.T) {
	f := newRegistryFixture(t,
		activeRoom("ended", "seller", "100", t0.Add(-time.Minute)),
		activeRoom("watched", "seller", "100", t0.Add(-time.Minute)),
		activeRoom("open", "seller", "100", t0.Add(time.Hour)),
	)
	f.registry.SetSubscriberCounter(fixedSubscribers{"watched": 1})
	ctx := context.Background()

	for _, id := range []string{"ended", "watched"} {
		if _, err := f.registry.Finalize(ctx, id); err != nil {
			t.Fatalf("finalize %s: %v", id, err)
		}
	}
	if _, err := f.registry.Snapshot(ctx, "open"); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if n := f.registry.ActiveCount(); n != 3 {
		t.Fatalf("expected 3 actors, got %d", n)
	}

	if n := f.registry.ReapIdle(f.clock.Now()); n != 0 {
		t.Errorf("nothing is idle yet, reaped %d", n)
	}

	f.clock.Advance(2 * time.Minute)
	if n := f.registry.ReapIdle(f.clock.Now()); n != 1 {
		t.Errorf("expected 1 reaped actor, got %d", n)
	}
	if n := f.registry.ActiveCount(); n != 2 {
		t.Errorf("expected 2 remaining actors, got %d", n)
	}

	// Reaped rooms come back on demand with the same state.
	snap, err := f.registry.Snapshot(ctx, "ended")
	if err != nil {
		t.Fatalf("snapshot after reap: %v", err)
	}
	if !snap.IsEnded() {
		t.Error("reloaded room should still be ended")
	}
}
