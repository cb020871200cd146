package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/journal"
	"github.com/roach88/proxysync/internal/nodes"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/renderer"
	"github.com/roach88/proxysync/internal/renderqueue"
	"github.com/roach88/proxysync/internal/scene"
	"github.com/roach88/proxysync/internal/testutil"
)

// frameStep is the delta time reported for every scenario frame.
const frameStep = float32(1.0 / 60)

// Harness holds the pieces of one scenario run. The calling goroutine is
// both the Game and the Render role: the render queue is inline and only
// advances on explicit pumps.
type Harness struct {
	queue    *renderqueue.Queue
	scene    *scene.Scene
	renderer *renderer.Renderer
	dev      *backend.Headless
	journal  *journal.Journal
	nodes    map[string]scene.SceneNode

	frame   uint64
	added   int
	removed int
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory journal and headless device
// for isolation. Node ids come from a sequential generator and timestamps
// from a fixed clock, so the trace depends only on the scenario.
//
// Execution flow:
// 1. Start an inline render queue and initialize the renderer
// 2. Build the declared nodes
// 3. Execute steps, flushing the journal after every frame
// 4. Capture the packed array, then clear the scene and stop the queue
// 5. Read the trace back from the journal and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context for journal I/O.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()
	clock := testutil.NewManualClock(time.Time{})
	j.SetNow(clock.Now)
	if err := j.BeginRun(ctx, scenario.Name, scenario.Description); err != nil {
		return nil, err
	}

	inFlight := scenario.FramesInFlight
	if inFlight == 0 {
		inFlight = game.DefaultFramesInFlight
	}

	reg := dispatch.NewRegistry(dispatch.WithLogger(logger))
	q := renderqueue.New(reg, renderqueue.WithLogger(logger), renderqueue.WithInline(true))
	if err := q.Init(); err != nil {
		return nil, fmt.Errorf("failed to start render queue: %w", err)
	}
	dev := backend.NewHeadless(backend.WithHeadlessLogger(logger))
	s := scene.New(reg,
		scene.WithLogger(logger),
		scene.WithObserver(j.Observer()),
		scene.WithGPU(scene.GPU{Device: dev, Buffers: reclaim.New(inFlight, dev.DestroyBuffer)}))
	r := renderer.New(s, renderer.WithLogger(logger))
	if err := r.Init(); err != nil {
		return nil, fmt.Errorf("failed to init renderer: %w", err)
	}
	q.RegisterCleanupTask(r.Deinit)

	h := &Harness{
		queue:    q,
		scene:    s,
		renderer: r,
		dev:      dev,
		journal:  j,
		nodes:    buildNodes(scenario.Nodes),
	}

	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps); err != nil {
		q.Stop()
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}

	for _, n := range s.Nodes() {
		result.Packed = append(result.Packed, n.Base().Name())
	}
	if err := h.teardown(ctx); err != nil {
		return nil, fmt.Errorf("failed to tear down: %w", err)
	}
	result.LiveBuffers = dev.Live()
	result.Frames = h.frame

	entries, err := j.Events(ctx, scenario.Name)
	if err != nil {
		return nil, err
	}
	result.Trace = traceFromJournal(entries)

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func buildNodes(defs []NodeDef) map[string]scene.SceneNode {
	ids := testutil.NewSequentialIDs()
	out := make(map[string]scene.SceneNode, len(defs))
	for _, d := range defs {
		var n scene.SceneNode
		switch d.Kind {
		case KindSpatial:
			n = nodes.NewSpatial(d.Name)
		case KindText:
			n = nodes.NewText(d.Name, d.Text)
		case KindMesh:
			n = nodes.NewMesh(d.Name, d.Vertices)
		case KindCamera:
			n = nodes.NewCamera(d.Name)
		default:
			n = scene.NewGroup(d.Name)
		}
		n.Base().SetID(ids.Next())
		out[d.Name] = n
	}
	return out
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step) error {
	for i, st := range steps {
		if err := h.executeStep(ctx, st); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) executeStep(ctx context.Context, st Step) error {
	switch {
	case st.Add != "":
		h.added++
		return h.scene.AddNode(h.nodes[st.Add])
	case st.Remove != "":
		h.removed++
		return h.scene.RemoveNode(h.nodes[st.Remove])
	case st.Push != "":
		h.nodes[st.Push].UpdateSceneProxy()
		return nil
	case st.SetText != nil:
		h.nodes[st.SetText.Node].(*nodes.TextNode).SetText(st.SetText.Text)
		return nil
	case st.FailCreates > 0:
		h.dev.FailNextCreates(st.FailCreates)
		return nil
	case st.Pump:
		_, err := h.queue.Pump()
		return err
	case st.Frames > 0:
		for range st.Frames {
			if err := h.renderFrame(ctx); err != nil {
				return err
			}
		}
		return nil
	case st.Clear:
		return h.scene.ClearNodes()
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) renderFrame(ctx context.Context) error {
	if _, err := h.queue.Pump(); err != nil {
		return err
	}
	st, err := h.renderer.Frame(frameStep)
	if err != nil {
		return err
	}
	h.frame = st.Frame
	fi := game.FrameInfo{
		Frame:     st.Frame,
		DeltaTime: frameStep,
		Added:     h.added,
		Removed:   h.removed,
		Nodes:     st.Packed,
	}
	h.added, h.removed = 0, 0
	return h.journal.Flush(ctx, fi)
}

// teardown clears the scene, stops the queue (running the renderer's
// cleanup) and closes the journal run.
func (h *Harness) teardown(ctx context.Context) error {
	if err := h.scene.ClearNodes(); err != nil {
		return err
	}
	if err := h.queue.StopAndWait(ctx); err != nil {
		return err
	}
	return h.journal.EndRun(ctx, h.frame)
}
