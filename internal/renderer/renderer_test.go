package renderer

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/nodes"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/renderqueue"
	"github.com/roach88/proxysync/internal/scene"
)

type fixture struct {
	queue    *renderqueue.Queue
	scene    *scene.Scene
	dev      *backend.Headless
	renderer *Renderer
	done     []FrameStats
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	q := renderqueue.New(reg, renderqueue.WithInline(true))
	require.NoError(t, q.Init())

	dev := backend.NewHeadless(backend.WithHeadlessLogger(logger))
	s := scene.New(reg, scene.WithGPU(scene.GPU{Device: dev, Buffers: reclaim.New(2, dev.DestroyBuffer)}))

	f := &fixture{queue: q, scene: s, dev: dev}
	f.renderer = New(s,
		WithLogger(logger),
		WithFrameSize(640, 480),
		WithCompletion(func(st FrameStats) { f.done = append(f.done, st) }))
	return f
}

func (f *fixture) frame(t *testing.T) FrameStats {
	t.Helper()
	_, err := f.queue.Pump()
	require.NoError(t, err)
	st, err := f.renderer.Frame(1.0 / 60)
	require.NoError(t, err)
	return st
}

func TestRenderer_FrameBeforeInitFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.renderer.Frame(0)
	require.Error(t, err)
	require.Len(t, f.done, 1, "completion runs even for failed frames")
	assert.Equal(t, uint64(1), f.done[0].Frame)
}

func TestRenderer_InitRequiresRenderRole(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.queue.StopAndWait(t.Context()))

	err := f.renderer.Init()
	assert.True(t, dispatch.IsMisuse(err, dispatch.ErrCodeWrongRole))
}

func TestRenderer_FoldsAndDraws(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Init())

	a := nodes.NewText("a", "alpha")
	b := nodes.NewText("b", "beta")
	require.NoError(t, f.scene.AddNode(a))
	require.NoError(t, f.scene.AddNode(b))

	st := f.frame(t)
	assert.Equal(t, uint64(1), st.Frame)
	assert.Equal(t, 2, st.Packed)

	draws := f.dev.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, "alpha", draws[0].Label)
	assert.Equal(t, "beta", draws[1].Label)

	require.NoError(t, f.scene.RemoveNode(a))
	st = f.frame(t)
	assert.Equal(t, 1, st.Packed)
	assert.Equal(t, []FrameStats{f.done[0], st}, f.done)
	assert.Equal(t, st, f.renderer.Last())
}

func TestRenderer_DeinitFlushesBuffers(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Init())

	mesh := nodes.NewMesh("mesh", []float32{0, 0, 0, 1, 1, 1})
	require.NoError(t, f.scene.AddNode(mesh))
	f.frame(t)
	require.Equal(t, 1, f.dev.Live())

	require.NoError(t, f.scene.ClearNodes())
	st := f.frame(t)
	assert.Equal(t, 0, st.Packed)
	assert.Equal(t, 1, st.Retired, "cleared mesh buffer is still in flight")

	f.renderer.Deinit()
	assert.False(t, f.renderer.Ready())
	assert.Equal(t, 0, f.dev.Live())
}

func TestRenderer_CameraUsesFrameSize(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.Init())

	cam := nodes.NewCamera("camera")
	require.NoError(t, f.scene.AddNode(cam))
	f.frame(t)

	w, h := cam.Proxy().(*nodes.CameraProxy).FrameSize()
	assert.Equal(t, float32(640), w)
	assert.Equal(t, float32(480), h)
}
