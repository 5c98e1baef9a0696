// Package scheduler runs the periodic housekeeping jobs of the engine.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

const (
	purgeBatchSize = 500
	purgeInterval  = time.Hour
	jobTimeout     = time.Minute
)

// ActorReaper is the subset of the room registry the janitor drives.
type ActorReaper interface {
	ReapIdle(now time.Time) int
	Forget(roomID string)
}

// EndedRoomStore lists and removes rooms past their retention window.
type EndedRoomStore interface {
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Delete(ctx context.Context, roomID string) error
}

// WatchPurger removes the watch subscriptions of a purged room.
type WatchPurger interface {
	DeleteByRoom(ctx context.Context, roomID string) (int64, error)
}

type JanitorConfig struct {
	IdleSweepInterval time.Duration
	RoomRetention     time.Duration
}

// Janitor reaps idle room actors and purges long-ended rooms.
type Janitor struct {
	cfg       JanitorConfig
	reaper    ActorReaper
	rooms     EndedRoomStore
	watches   WatchPurger
	clock     func() time.Time
	log       zerolog.Logger
	scheduler gocron.Scheduler
}

func NewJanitor(cfg JanitorConfig, reaper ActorReaper, rooms EndedRoomStore, watches WatchPurger, clock func() time.Time, log zerolog.Logger) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	if cfg.IdleSweepInterval <= 0 {
		cfg.IdleSweepInterval = time.Minute
	}
	if clock == nil {
		clock = time.Now
	}
	return &Janitor{
		cfg:       cfg,
		reaper:    reaper,
		rooms:     rooms,
		watches:   watches,
		clock:     clock,
		log:       log,
		scheduler: s,
	}, nil
}

// Start registers the jobs and starts the scheduler. Room purging is
// disabled when RoomRetention is zero.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.cfg.IdleSweepInterval),
		gocron.NewTask(func() { j.reapIdle() }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	if j.cfg.RoomRetention > 0 {
		_, err = j.scheduler.NewJob(
			gocron.DurationJob(purgeInterval),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				defer cancel()
				j.purgeEnded(ctx)
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}
	}

	j.scheduler.Start()
	return nil
}

func (j *Janitor) Stop() error {
	return j.scheduler.Shutdown()
}

func (j *Janitor) reapIdle() int {
	n := j.reaper.ReapIdle(j.clock())
	if n > 0 {
		j.log.Info().Str("job", "reap_idle").Int("reaped", n).Msg("idle actors stopped")
	}
	return n
}

// purgeEnded deletes one batch of rooms that ended before the retention
// cutoff. Failures are logged and retried on the next run.
func (j *Janitor) purgeEnded(ctx context.Context) int {
	cutoff := j.clock().Add(-j.cfg.RoomRetention)
	ids, err := j.rooms.ListEndedBefore(ctx, cutoff, purgeBatchSize)
	if err != nil {
		j.log.Error().Err(err).Str("job", "purge_ended").Msg("list ended rooms failed")
		return 0
	}

	purged := 0
	for _, id := range ids {
		j.reaper.Forget(id)
		if _, err := j.watches.DeleteByRoom(ctx, id); err != nil {
			j.log.Error().Err(err).Str("room_id", id).Msg("delete watches failed")
			continue
		}
		if err := j.rooms.Delete(ctx, id); err != nil {
			j.log.Error().Err(err).Str("room_id", id).Msg("delete room failed")
			continue
		}
		purged++
	}
	if purged > 0 {
		j.log.Info().Str("job", "purge_ended").Int("purged", purged).Time("cutoff", cutoff).Msg("ended rooms purged")
	}
	return purged
}
