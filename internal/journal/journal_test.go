package journal

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/scene"
)

func openJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	j.SetNow(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	return j, path
}

func ev(kind scene.EventKind, node string) scene.Event {
	return scene.Event{Kind: kind, Node: node, Index: -1, Size: -1}
}

func TestOpen_Pragmas(t *testing.T) {
	j, _ := openJournal(t)

	var mode string
	require.NoError(t, j.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var fk int
	require.NoError(t, j.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestRecord_DroppedOutsideRun(t *testing.T) {
	j, _ := openJournal(t)

	j.Record(ev(scene.EventAddQueued, "a"))
	assert.Equal(t, 0, j.Buffered())
	assert.ErrorIs(t, j.Flush(t.Context(), game.FrameInfo{Frame: 1}), ErrNoRun)
}

func TestFlush_WritesFrameAndEvents(t *testing.T) {
	j, _ := openJournal(t)
	ctx := t.Context()
	require.NoError(t, j.BeginRun(ctx, "run-1", "unit"))

	obs := j.Observer()
	obs(ev(scene.EventAddQueued, "a"))
	obs(ev(scene.EventAdded, "a"))
	obs(scene.Event{Kind: scene.EventPacked, Node: "a", Index: 0, Size: 1})
	assert.Equal(t, 3, j.Buffered())

	require.NoError(t, j.Flush(ctx, game.FrameInfo{Frame: 1, DeltaTime: 0.5, Added: 1, Nodes: 1}))
	assert.Equal(t, 0, j.Buffered())

	obs(ev(scene.EventRemoveQueued, "a"))
	require.NoError(t, j.Flush(ctx, game.FrameInfo{Frame: 2, DeltaTime: 0.5, Removed: 1}))

	events, err := j.Events(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, []int64{1, 2, 3, 4}, []int64{events[0].Seq, events[1].Seq, events[2].Seq, events[3].Seq})
	assert.Equal(t, scene.EventPacked, events[2].Kind)
	assert.Equal(t, 0, events[2].Index)
	assert.Equal(t, uint64(1), events[2].Frame)
	assert.Equal(t, uint64(2), events[3].Frame)

	frames, err := j.Frames(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, game.FrameInfo{Frame: 1, DeltaTime: 0.5, Added: 1, Nodes: 1}, frames[0])
	assert.Equal(t, 1, frames[1].Removed)
}

func TestEndRun_FlushesRemainderAndFinishes(t *testing.T) {
	j, _ := openJournal(t)
	ctx := t.Context()
	require.NoError(t, j.BeginRun(ctx, "run-1", "unit"))

	j.Record(ev(scene.EventCleared, "a"))
	j.Record(ev(scene.EventDestroyed, "a"))
	require.NoError(t, j.EndRun(ctx, 7))

	events, err := j.Events(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(7), events[1].Frame)

	run, ok, err := j.LastRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "unit", run.Label)
	require.NotNil(t, run.FinishedAt)

	assert.ErrorIs(t, j.EndRun(ctx, 8), ErrNoRun)
}

func TestSeqContinuesAcrossReopen(t *testing.T) {
	j, path := openJournal(t)
	ctx := t.Context()
	require.NoError(t, j.BeginRun(ctx, "first", "unit"))
	j.Record(ev(scene.EventAddQueued, "a"))
	j.Record(ev(scene.EventAdded, "a"))
	require.NoError(t, j.EndRun(ctx, 1))
	require.NoError(t, j.Close())

	j2, err := Open(path)
	require.NoError(t, err)
	defer j2.Close()
	assert.Equal(t, int64(2), j2.clock.Current())

	require.NoError(t, j2.BeginRun(ctx, "second", "unit"))
	j2.Record(ev(scene.EventAddQueued, "b"))
	require.NoError(t, j2.EndRun(ctx, 1))

	events, err := j2.Events(ctx, "second")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Seq)

	runs, err := j2.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRecord_ConcurrentProducers(t *testing.T) {
	j, _ := openJournal(t)
	ctx := t.Context()
	require.NoError(t, j.BeginRun(ctx, "run", "unit"))

	const producers, each = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				j.Record(ev(scene.EventAdded, "n"))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, j.Flush(ctx, game.FrameInfo{Frame: 1}))

	events, err := j.Events(ctx, "run")
	require.NoError(t, err)
	require.Len(t, events, producers*each)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())

	c = NewClockAt(41)
	assert.Equal(t, int64(42), c.Next())
}
