package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeReaper struct {
	reapedAt  []time.Time
	forgotten []string
}

func (f *fakeReaper) ReapIdle(at time.Time) int {
	f.reapedAt = append(f.reapedAt, at)
	return 2
}

func (f *fakeReaper) Forget(roomID string) { f.forgotten = append(f.forgotten, roomID) }

type fakeRooms struct {
	ended     []string
	cutoff    time.Time
	deleted   []string
	deleteErr map[string]error
}

func (f *fakeRooms) ListEndedBefore(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	f.cutoff = cutoff
	if len(f.ended) > limit {
		return f.ended[:limit], nil
	}
	return f.ended, nil
}

func (f *fakeRooms) Delete(_ context.Context, roomID string) error {
	if err := f.deleteErr[roomID]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, roomID)
	return nil
}

type fakeWatches struct{ purged []string }

func (f *fakeWatches) DeleteByRoom(_ context.Context, roomID string) (int64, error) {
	f.purged = append(f.purged, roomID)
	return 1, nil
}

func newTestJanitor(t *testing.T, rooms *fakeRooms) (*Janitor, *fakeReaper, *fakeWatches) {
	t.Helper()
	reaper := &fakeReaper{}
	watches := &fakeWatches{}
	j, err := NewJanitor(JanitorConfig{IdleSweepInterval: time.Minute, RoomRetention: 30 * 24 * time.Hour},
		reaper, rooms, watches, func() time.Time { return now }, zerolog.Nop())
	require.NoError(t, err)
	return j, reaper, watches
}

func TestJanitor_ReapIdle(t *testing.T) {
	j, reaper, _ := newTestJanitor(t, &fakeRooms{})

	require.Equal(t, 2, j.reapIdle())
	require.Equal(t, []time.Time{now}, reaper.reapedAt)
}

func TestJanitor_PurgeEnded(t *testing.T) {
	rooms := &fakeRooms{
		ended:     []string{"r1", "r2", "r3"},
		deleteErr: map[string]error{"r2": errors.New("mongo down")},
	}
	j, reaper, watches := newTestJanitor(t, rooms)

	require.Equal(t, 2, j.purgeEnded(context.Background()))
	require.Equal(t, now.Add(-30*24*time.Hour), rooms.cutoff)
	require.Equal(t, []string{"r1", "r2", "r3"}, reaper.forgotten)
	require.Equal(t, []string{"r1", "r2", "r3"}, watches.purged)
	require.Equal(t, []string{"r1", "r3"}, rooms.deleted)
}

func TestJanitor_StartStop(t *testing.T) {
	j, _, _ := newTestJanitor(t, &fakeRooms{})
	require.NoError(t, j.Start())
	require.NoError(t, j.Stop())
}

func TestJanitor_UsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).With().Str("component", "janitor").Logger()
	j, err := NewJanitor(JanitorConfig{IdleSweepInterval: time.Minute},
		&fakeReaper{}, &fakeRooms{}, &fakeWatches{}, func() time.Time { return now }, log)
	require.NoError(t, err)

	require.Equal(t, 2, j.reapIdle())
	line := buf.String()
	require.Contains(t, line, `"job":"reap_idle"`)
	require.Equal(t, 1, strings.Count(line, `"component"`))
}
