package game

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/behavior"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/nodes"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/renderer"
	"github.com/roach88/proxysync/internal/renderqueue"
	"github.com/roach88/proxysync/internal/scene"
	"github.com/roach88/proxysync/internal/testutil"
)

type fixture struct {
	reg    *dispatch.Registry
	queue  *renderqueue.Queue
	scene  *scene.Scene
	dev    *backend.Headless
	clock  *testutil.ManualClock
	frames []FrameInfo
	game   *Game
}

func newFixture(t *testing.T, inline bool, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	q := renderqueue.New(reg, renderqueue.WithInline(inline))
	dev := backend.NewHeadless(backend.WithHeadlessLogger(logger))
	s := scene.New(reg, scene.WithGPU(scene.GPU{Device: dev, Buffers: reclaim.New(2, dev.DestroyBuffer)}))
	r := renderer.New(s, renderer.WithLogger(logger))

	f := &fixture{reg: reg, queue: q, scene: s, dev: dev, clock: testutil.NewManualClock(time.Time{})}
	base := []Option{
		WithLogger(logger),
		WithClock(f.clock),
		WithFixedStep(time.Second / 60),
		WithFrameHook(func(fi FrameInfo) { f.frames = append(f.frames, fi) }),
	}
	f.game = New(reg, q, s, r, append(base, opts...)...)
	return f
}

func TestGame_NoEntry(t *testing.T) {
	f := newFixture(t, true)
	assert.ErrorIs(t, f.game.Run(t.Context(), nil), ErrNoEntry)
}

func TestGame_InlineFramesAndTeardown(t *testing.T) {
	f := newFixture(t, true, WithMaxFrames(3))

	root := scene.NewGroup("root")
	mesh := nodes.NewMesh("mesh", []float32{0, 0, 0, 1, 0, 0, 0, 1, 0})
	root.AddChild(mesh)
	root.AddChild(nodes.NewText("label", "hello"))

	require.NoError(t, f.game.Run(t.Context(), root))

	require.Len(t, f.frames, 3)
	assert.Equal(t, 3, f.frames[0].Added)
	assert.Equal(t, 0, f.frames[1].Added)
	assert.Equal(t, 3, f.frames[2].Nodes)
	assert.InDelta(t, 1.0/60, f.frames[0].DeltaTime, 1e-6)
	assert.Equal(t, uint64(3), f.game.Frame())

	assert.Equal(t, renderqueue.StateStopped, f.queue.State())
	assert.Equal(t, 0, f.dev.Live(), "renderer teardown flushes retired buffers")
	assert.Nil(t, mesh.Proxy())
	assert.False(t, mesh.InScene())
	assert.Equal(t, dispatch.ThreadID(0), f.reg.RoleThread(dispatch.RoleGame))
	assert.Equal(t, dispatch.ThreadID(0), f.reg.RoleThread(dispatch.RoleRender))

	assert.ErrorIs(t, f.game.Run(t.Context(), root), ErrAlreadyRan)
}

func TestGame_RecollectAddsAndRemoves(t *testing.T) {
	f := newFixture(t, true, WithMaxFrames(4))

	root := scene.NewGroup("root")
	a := nodes.NewText("a", "a")
	root.AddChild(a)
	var b *nodes.TextNode

	f.game.Behaviors().Add("editor", behavior.Funcs{OnUpdate: func(float32) {
		switch f.game.Frame() {
		case 2:
			b = nodes.NewText("b", "b")
			root.AddChild(b)
			f.game.Recollect()
		case 3:
			root.RemoveChild(a)
			f.game.Recollect()
		}
	}}, 0)

	require.NoError(t, f.game.Run(t.Context(), root))

	require.Len(t, f.frames, 4)
	assert.Equal(t, []int{2, 1, 0, 0}, []int{f.frames[0].Added, f.frames[1].Added, f.frames[2].Added, f.frames[3].Added})
	assert.Equal(t, []int{0, 0, 1, 0}, []int{f.frames[0].Removed, f.frames[1].Removed, f.frames[2].Removed, f.frames[3].Removed})
	assert.Equal(t, 2, f.frames[3].Nodes)
	require.NotNil(t, b)
	assert.False(t, a.InScene())
}

func TestGame_StopFromBehavior(t *testing.T) {
	f := newFixture(t, true)

	f.game.Behaviors().Add("stopper", behavior.Funcs{OnUpdate: func(float32) {
		if f.game.Frame() == 5 {
			f.game.Stop()
		}
	}}, 0)

	require.NoError(t, f.game.Run(t.Context(), scene.NewGroup("root")))
	assert.Equal(t, uint64(5), f.game.Frame())
	assert.Len(t, f.frames, 5)
}

func TestGame_Pacing(t *testing.T) {
	f := newFixture(t, true, WithMaxFrames(3), WithMaxFrameRate(50), WithFixedStep(0))

	require.NoError(t, f.game.Run(t.Context(), scene.NewGroup("root")))

	assert.Equal(t, []time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}, f.clock.Sleeps())
	for _, fi := range f.frames {
		assert.InDelta(t, 0.02, fi.DeltaTime, 1e-6)
	}
	assert.Equal(t, 60*time.Millisecond, f.frames[2].Elapsed)
}

func TestGame_CancelledContextShutsDownCleanly(t *testing.T) {
	f := newFixture(t, true)

	ctx, cancel := context.WithCancel(t.Context())
	f.game.Behaviors().Add("cancel", behavior.Funcs{OnUpdate: func(float32) {
		if f.game.Frame() == 2 {
			cancel()
		}
	}}, 0)

	require.NoError(t, f.game.Run(ctx, scene.NewGroup("root")))
	assert.Equal(t, uint64(2), f.game.Frame())
	assert.Equal(t, renderqueue.StateStopped, f.queue.State())
}

func TestGame_CleanupRunsLIFOBeforeQueueStops(t *testing.T) {
	f := newFixture(t, true, WithMaxFrames(1))

	var order []string
	var states []renderqueue.State
	f.game.Behaviors().Add("setup", behavior.Funcs{OnStart: func() {
		f.game.RegisterCleanupTask(func() {
			order = append(order, "first")
			states = append(states, f.queue.State())
		})
		f.game.RegisterCleanupTask(func() {
			order = append(order, "second")
			assert.Equal(t, 0, f.scene.Len(), "scene cleared before game cleanup")
		})
	}}, 0)

	require.NoError(t, f.game.Run(t.Context(), scene.NewGroup("root")))
	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, []renderqueue.State{renderqueue.StateRunning}, states)
	assert.Equal(t, renderqueue.StateStopped, f.queue.State())
}

func TestGame_SubmitRunsOnGameRole(t *testing.T) {
	f := newFixture(t, true, WithMaxFrames(3))

	var onGame bool
	var ranAt uint64
	f.game.Behaviors().Add("submitter", behavior.Funcs{OnStart: func() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.game.Submit(func() {
				onGame = f.reg.IsCurrent(dispatch.RoleGame)
				ranAt = f.game.Frame()
			}))
		}()
		wg.Wait()
	}}, 0)

	require.NoError(t, f.game.Run(t.Context(), scene.NewGroup("root")))
	assert.True(t, onGame)
	assert.Equal(t, uint64(1), ranAt, "drained at the start of frame 2")

	err := f.game.Submit(func() {})
	assert.True(t, dispatch.IsMisuse(err, dispatch.ErrCodeEnqueueAfterStop))
}

func TestGame_RendererInitFailure(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	q := renderqueue.New(reg, renderqueue.WithInline(true))
	s := scene.New(reg)
	g := New(reg, q, s, renderer.New(s, renderer.WithLogger(logger)), WithLogger(logger))

	err := g.Run(t.Context(), scene.NewGroup("root"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "renderer init")
	assert.Equal(t, renderqueue.StateStopped, q.State())
	assert.Equal(t, dispatch.ThreadID(0), reg.RoleThread(dispatch.RoleGame))
}

func TestGame_ThreadedRun(t *testing.T) {
	f := newFixture(t, false, WithMaxFrames(200), WithFramesInFlight(2))

	root := scene.NewGroup("root")
	spinner := nodes.NewSpatial("spinner")
	spinner.SetSpin(1)
	root.AddChild(spinner)
	root.AddChild(nodes.NewMesh("mesh", []float32{0, 0, 0, 1, 1, 1}))

	require.NoError(t, f.game.Run(t.Context(), root))

	assert.Len(t, f.frames, 200)
	assert.Equal(t, renderqueue.StateStopped, f.queue.State())
	assert.Equal(t, 0, f.dev.Live())
	assert.Nil(t, spinner.Proxy())
	created, freed := f.dev.Stats()
	assert.Equal(t, created, freed)
}
