package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bidhall/auction-engine/internal/core/domain"
	"github.com/bidhall/auction-engine/internal/core/ports"
	"github.com/bidhall/auction-engine/internal/pkg/metrics"
)

type commandKind uint8

const (
	cmdPlaceBid commandKind = iota
	cmdFinalize
	cmdCancel
	cmdUpdate
)

// roomCommand is one unit of work for a room actor. reply is buffered so the
// actor never blocks on a caller that already gave up.
type roomCommand struct {
	kind   commandKind
	bid    ports.PlaceBidInput
	update ports.UpdateRoomInput
	cancel ports.CancelRoomInput
	reply  chan commandReply
}

type commandReply struct {
	bid   *ports.BidResult
	ended *domain.RoomEnded
	room  *domain.AuctionRoom
	err   error
}

// actorDeps is shared by every actor spawned from the same registry.
type actorDeps struct {
	store          ports.RoomRepository
	sink           ports.EventSink
	clock          func() time.Time
	log            zerolog.Logger
	inboxSize      int
	persistRetries int
	persistBackoff time.Duration
	persistTimeout time.Duration
	// onReschedule is called after an end time edit has been stored.
	onReschedule func(room *domain.AuctionRoom)
}

// roomActor owns one AuctionRoom. All reads and writes of room, applied and
// ended happen on the run goroutine; other goroutines only see snapshot.
type roomActor struct {
	id   string
	deps actorDeps

	room           *domain.AuctionRoom
	applied        map[string]*ports.BidResult // keyed by commandKey
	ended          *domain.RoomEnded
	lastAcceptedAt time.Time

	snapshot   atomic.Pointer[domain.AuctionRoom]
	unhealthy  atomic.Bool
	lastActive atomic.Int64

	inbox    chan *roomCommand
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// newRoomActor rebuilds actor state from a stored room: the applied command
// map comes from the bids' command ids and an ended room gets its cached
// final result back, so replays behave the same across restarts.
func newRoomActor(room *domain.AuctionRoom, deps actorDeps) *roomActor {
	a := &roomActor{
		id:      room.ID,
		deps:    deps,
		room:    room.Clone(),
		applied: make(map[string]*ports.BidResult, len(room.Bids)),
		inbox:   make(chan *roomCommand, deps.inboxSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	prevBidder := ""
	for _, b := range a.room.Bids {
		if b.CommandID != "" {
			a.applied[commandKey(b.BidderID, b.CommandID)] = &ports.BidResult{
				BidID:              b.ID,
				RoomID:             a.id,
				BidderID:           b.BidderID,
				NewPrice:           b.Amount,
				PreviousHighBidder: prevBidder,
				AcceptedAt:         b.AcceptedAt,
			}
		}
		prevBidder = b.BidderID
		a.lastAcceptedAt = b.AcceptedAt
	}
	if a.room.IsEnded() {
		a.ended = endedPayload(a.room)
	}

	a.publishSnapshot()
	a.touch()
	return a
}

func (a *roomActor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		case cmd := <-a.inbox:
			a.touch()
			cmd.reply <- a.handle(ctx, cmd)
			if a.unhealthy.Load() {
				a.deps.log.Warn().Str("room_id", a.id).Msg("room actor unhealthy, stopping")
				return
			}
		}
	}
}

// submit enqueues cmd and waits for its reply. delivered is false only when
// the actor stopped without processing cmd, in which case it is safe to send
// the same command to a fresh actor.
func (a *roomActor) submit(ctx context.Context, cmd *roomCommand) (reply commandReply, delivered bool, err error) {
	select {
	case a.inbox <- cmd:
	case <-a.done:
		return commandReply{}, false, nil
	case <-ctx.Done():
		return commandReply{}, false, ctx.Err()
	}

	select {
	case rep := <-cmd.reply:
		return rep, true, nil
	case <-a.done:
		select {
		case rep := <-cmd.reply:
			return rep, true, nil
		default:
			return commandReply{}, false, nil
		}
	case <-ctx.Done():
		// The command may still be applied; the caller has to re-check.
		return commandReply{}, true, fmt.Errorf("room %s: command outcome unknown: %w", a.id, ctx.Err())
	}
}

func (a *roomActor) shutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *roomActor) alive() bool {
	select {
	case <-a.done:
		return false
	default:
		return true
	}
}

func (a *roomActor) touch() {
	a.lastActive.Store(a.deps.clock().UnixNano())
}

func (a *roomActor) idleSince() time.Time {
	return time.Unix(0, a.lastActive.Load())
}

// view returns a copy of the last published room state. Safe from any goroutine.
func (a *roomActor) view() *domain.AuctionRoom {
	return a.snapshot.Load().Clone()
}

func (a *roomActor) publishSnapshot() {
	a.snapshot.Store(a.room.Clone())
}

func (a *roomActor) handle(ctx context.Context, cmd *roomCommand) commandReply {
	switch cmd.kind {
	case cmdPlaceBid:
		return a.placeBid(ctx, cmd.bid)
	case cmdFinalize:
		ended, err := a.finalize(ctx, domain.EndReasonExpired)
		return commandReply{ended: ended, err: err}
	case cmdCancel:
		return a.cancelRoom(ctx, cmd.cancel)
	case cmdUpdate:
		return a.updateRoom(ctx, cmd.update)
	}
	return commandReply{err: fmt.Errorf("room %s: unknown command %d", a.id, cmd.kind)}
}

func (a *roomActor) placeBid(ctx context.Context, in ports.PlaceBidInput) commandReply {
	start := time.Now()
	defer func() { metrics.BidProcessingDuration.Observe(time.Since(start).Seconds()) }()

	if in.CommandID != "" {
		if res, ok := a.applied[commandKey(in.BidderID, in.CommandID)]; ok {
			replay := *res
			replay.Replayed = true
			metrics.BidsTotal.WithLabelValues("replayed").Inc()
			return commandReply{bid: &replay}
		}
	}

	room := a.room
	if room.IsEnded() {
		return a.reject(domain.ErrAuctionEnded, "ended")
	}

	now := a.deps.clock()
	if !now.Before(room.EndTime) {
		// The deadline timer has not fired yet; close the room ourselves.
		if _, err := a.finalize(ctx, domain.EndReasonExpired); err != nil {
			a.deps.log.Error().Err(err).Str("room_id", a.id).Msg("finalize on late bid failed")
		}
		return a.reject(domain.ErrAuctionEnded, "ended")
	}
	if in.BidderID == room.SellerID {
		return a.reject(domain.ErrSelfBid, "self_bid")
	}
	if !in.Amount.GreaterThan(room.CurrentPrice) {
		return a.reject(domain.ErrBidTooLow, "too_low")
	}

	bid := domain.Bid{
		ID:         uuid.NewString(),
		RoomID:     room.ID,
		BidderID:   in.BidderID,
		Amount:     in.Amount,
		AcceptedAt: a.nextAcceptedAt(now),
		CommandID:  in.CommandID,
	}
	err := a.persist(ctx, "append_bid", func(ctx context.Context) error {
		return a.deps.store.AppendBid(ctx, room.ID, bid, room.Version)
	})
	if err != nil {
		label := "persistence_error"
		if errors.Is(err, domain.ErrInvalidAmount) {
			label = "invalid"
		}
		metrics.BidsTotal.WithLabelValues(label).Inc()
		return commandReply{err: err}
	}

	prevBidder := room.HighestBidderID()
	prevPrice := room.CurrentPrice
	room.Bids = append(room.Bids, bid)
	room.CurrentPrice = bid.Amount
	room.Version++
	a.lastAcceptedAt = bid.AcceptedAt
	a.publishSnapshot()

	res := &ports.BidResult{
		BidID:              bid.ID,
		RoomID:             room.ID,
		BidderID:           bid.BidderID,
		NewPrice:           bid.Amount,
		PreviousHighBidder: prevBidder,
		AcceptedAt:         bid.AcceptedAt,
	}
	if in.CommandID != "" {
		a.applied[commandKey(in.BidderID, in.CommandID)] = res
	}
	metrics.BidsTotal.WithLabelValues("accepted").Inc()

	a.emit(domain.Event{
		Type:       domain.EventBidAccepted,
		OccurredAt: bid.AcceptedAt,
		BidAccepted: &domain.BidAccepted{
			RoomID:             room.ID,
			BidID:              bid.ID,
			BidderID:           bid.BidderID,
			NewPrice:           bid.Amount,
			PreviousPrice:      prevPrice,
			PreviousHighBidder: prevBidder,
			AcceptedAt:         bid.AcceptedAt,
			Title:              room.Title,
		},
	})

	a.deps.log.Debug().
		Str("room_id", room.ID).
		Str("bidder_id", bid.BidderID).
		Str("amount", bid.Amount.String()).
		Msg("bid accepted")

	out := *res
	return commandReply{bid: &out}
}

// commandKey scopes a command id to its bidder; ids are client generated and
// only unique per client.
func commandKey(bidderID, commandID string) string {
	return bidderID + "\x00" + commandID
}

func (a *roomActor) reject(reason error, label string) commandReply {
	metrics.BidsTotal.WithLabelValues(label).Inc()
	return commandReply{err: &domain.BidRejectedError{Reason: reason, CurrentPrice: a.room.CurrentPrice}}
}

// nextAcceptedAt keeps acceptance times strictly increasing at the store's
// millisecond precision, even when the wall clock stalls or steps back.
func (a *roomActor) nextAcceptedAt(now time.Time) time.Time {
	t := now.UTC().Truncate(time.Millisecond)
	if !t.After(a.lastAcceptedAt) {
		t = a.lastAcceptedAt.Add(time.Millisecond)
	}
	return t
}

// finalize ends the room. Calling it on an ended room returns the cached
// result and emits nothing.
func (a *roomActor) finalize(ctx context.Context, reason domain.EndReason) (*domain.RoomEnded, error) {
	if a.ended != nil {
		return a.endedCopy(), nil
	}

	room := a.room
	now := a.deps.clock()
	if reason == domain.EndReasonExpired && now.Before(room.EndTime) {
		return nil, domain.ErrRoomStillOpen
	}

	winner := ""
	if reason == domain.EndReasonExpired {
		winner = room.HighestBidderID()
	}
	endedAt := now.UTC().Truncate(time.Millisecond)

	err := a.persist(ctx, "mark_ended", func(ctx context.Context) error {
		return a.deps.store.MarkEnded(ctx, room.ID, winner, endedAt, reason, room.Version)
	})
	if err != nil {
		return nil, err
	}

	room.Status = domain.RoomStatusEnded
	room.WinnerID = winner
	room.EndedAt = &endedAt
	room.EndReason = reason
	room.Version++
	a.ended = endedPayload(room)
	a.publishSnapshot()

	metrics.RoomsFinalizedTotal.WithLabelValues(string(reason)).Inc()
	a.emit(domain.Event{
		Type:       domain.EventRoomEnded,
		OccurredAt: endedAt,
		RoomEnded:  a.endedCopy(),
	})

	a.deps.log.Info().
		Str("room_id", room.ID).
		Str("winner_id", winner).
		Str("final_price", room.CurrentPrice.String()).
		Str("reason", string(reason)).
		Msg("room ended")

	return a.endedCopy(), nil
}

func (a *roomActor) endedCopy() *domain.RoomEnded {
	out := *a.ended
	out.Bidders = append([]string(nil), a.ended.Bidders...)
	return &out
}

func endedPayload(room *domain.AuctionRoom) *domain.RoomEnded {
	ev := &domain.RoomEnded{
		RoomID:     room.ID,
		WinnerID:   room.WinnerID,
		FinalPrice: room.CurrentPrice,
		Reason:     room.EndReason,
		TotalBids:  len(room.Bids),
		Title:      room.Title,
		Bidders:    room.Bidders(),
	}
	if room.EndedAt != nil {
		ev.EndedAt = *room.EndedAt
	}
	return ev
}

// cancelRoom ends the room with no winner. Admins may cancel any active room;
// the seller only while nobody has bid.
func (a *roomActor) cancelRoom(ctx context.Context, in ports.CancelRoomInput) commandReply {
	room := a.room
	if room.IsEnded() {
		return commandReply{err: domain.ErrAuctionEnded}
	}
	if in.ActorRole != domain.RoleAdmin {
		if in.ActorID != room.SellerID {
			return commandReply{err: domain.ErrForbidden}
		}
		if len(room.Bids) > 0 {
			return commandReply{err: domain.ErrRoomHasBids}
		}
	}
	ended, err := a.finalize(ctx, domain.EndReasonCancelled)
	return commandReply{ended: ended, err: err}
}

func (a *roomActor) updateRoom(ctx context.Context, in ports.UpdateRoomInput) commandReply {
	room := a.room
	if in.ActorRole != domain.RoleAdmin && in.ActorID != room.SellerID {
		return commandReply{err: domain.ErrForbidden}
	}
	if room.IsEnded() {
		return commandReply{err: domain.ErrAuctionEnded}
	}

	next := room.Clone()
	if in.Title != nil {
		next.Title = *in.Title
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	if in.Category != nil {
		next.Category = *in.Category
	}
	if in.Tags != nil {
		next.Tags = domain.NormalizeTags(in.Tags)
	}
	endTimeChanged := false
	if in.EndTime != nil && !in.EndTime.Equal(room.EndTime) {
		if len(room.Bids) > 0 {
			return commandReply{err: domain.ErrRoomHasBids}
		}
		if !in.EndTime.After(a.deps.clock()) {
			return commandReply{err: fmt.Errorf("%w: end time must be in the future", domain.ErrInvalidRoom)}
		}
		next.EndTime = in.EndTime.UTC().Truncate(time.Millisecond)
		endTimeChanged = true
	}
	if next.Title == "" {
		return commandReply{err: fmt.Errorf("%w: title is required", domain.ErrInvalidRoom)}
	}

	err := a.persist(ctx, "update_details", func(ctx context.Context) error {
		return a.deps.store.UpdateDetails(ctx, next, room.Version)
	})
	if err != nil {
		return commandReply{err: err}
	}

	next.Version = room.Version + 1
	a.room = next
	a.publishSnapshot()
	if endTimeChanged && a.deps.onReschedule != nil {
		a.deps.onReschedule(next.Clone())
	}
	return commandReply{room: next.Clone()}
}

// persist runs write with retries. Exhausting retries, or losing the version
// race to another writer, marks the actor unhealthy so the registry rebuilds
// it from the store. Amounts the store cannot encode fail at once and leave
// the actor healthy.
func (a *roomActor) persist(ctx context.Context, op string, write func(context.Context) error) error {
	attempts := a.deps.persistRetries
	if attempts < 1 {
		attempts = 1
	}

	var err error
retry:
	for attempt := 1; attempt <= attempts; attempt++ {
		wctx, cancel := context.WithTimeout(ctx, a.deps.persistTimeout)
		err = write(wctx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrInvalidAmount) {
			// Rejected before reaching the store; nothing changed.
			return fmt.Errorf("%s room %s: %w", op, a.id, err)
		}
		if errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrRoomNotFound) {
			break
		}
		a.deps.log.Warn().Err(err).
			Str("room_id", a.id).
			Str("op", op).
			Int("attempt", attempt).
			Msg("room store write failed")
		if attempt < attempts {
			select {
			case <-time.After(a.deps.persistBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				break retry
			}
		}
	}

	a.unhealthy.Store(true)
	metrics.PersistenceFailuresTotal.WithLabelValues(op).Inc()
	a.deps.log.Error().Err(err).Str("room_id", a.id).Str("op", op).Msg("room store write gave up")
	return fmt.Errorf("%s room %s: %w: %w", op, a.id, domain.ErrPersistence, err)
}

func (a *roomActor) emit(ev domain.Event) {
	ev.RoomID = a.id
	ev.Sequence = a.room.Version
	if a.deps.sink != nil {
		a.deps.sink.Emit(ev)
	}
}
