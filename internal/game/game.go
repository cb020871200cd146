package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/proxysync/internal/behavior"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/renderer"
	"github.com/roach88/proxysync/internal/renderqueue"
	"github.com/roach88/proxysync/internal/scene"
)

// ErrNoEntry is returned by Run when no root node is given.
var ErrNoEntry = errors.New("game has no entry node")

// ErrAlreadyRan is returned by a second Run.
var ErrAlreadyRan = errors.New("game already ran")

const (
	// DefaultFramesInFlight bounds how far the game may run ahead of the
	// render goroutine.
	DefaultFramesInFlight = 2

	// slotTimeout is how long a frame waits for the render goroutine before
	// the loop drains its mailbox and tries again.
	slotTimeout = 3 * time.Second

	shutdownTimeout = 10 * time.Second
)

// FrameInfo describes a frame the game submitted.
type FrameInfo struct {
	Frame     uint64
	DeltaTime float32
	Elapsed   time.Duration
	Added     int
	Removed   int
	Nodes     int
}

// Game runs the game role loop.
//
// Thread-safety model:
//   - Run executes on the calling goroutine, which becomes the Game role
//   - Stop, Submit and RegisterCleanupTask may be called from any goroutine
//   - everything else (node tree, behaviors, recollection) belongs to the
//     Game role and must be reached through Submit from other goroutines
//
// INVARIANTS:
//   - at most framesInFlight frames are submitted and not yet rendered
//   - a node is added to the scene once per appearance in the tree and
//     removed once when it leaves
//   - shutdown clears the scene and waits for the render goroutine before
//     running cleanup tasks
type Game struct {
	reg      *dispatch.Registry
	queue    *renderqueue.Queue
	scene    *scene.Scene
	renderer *renderer.Renderer
	logger   *slog.Logger

	mailbox   *dispatch.Mailbox
	behaviors *behavior.Manager
	slots     *semaphore.Weighted
	clock     Clock
	hook      func(FrameInfo)

	framesInFlight int
	maxFrameRate   float64
	maxFrames      uint64
	fixedStep      time.Duration

	ran     atomic.Bool
	stopped atomic.Bool

	cleanupMu sync.Mutex
	cleanup   []dispatch.Task

	// Game role state.
	root           scene.SceneNode
	updateNodes    []scene.SceneNode
	tracked        map[*scene.Node]bool
	newNodes       []scene.SceneNode
	removedNodes   []scene.SceneNode
	needsRecollect bool
	frame          uint64
	lastMark       time.Time
	elapsed        time.Duration
}

// Option configures a Game.
type Option func(*Game)

// WithLogger sets the game logger. Defaults to the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithFramesInFlight sets how many frames may be queued ahead of the
// render goroutine. Values below 1 are ignored.
func WithFramesInFlight(n int) Option {
	return func(g *Game) {
		if n >= 1 {
			g.framesInFlight = n
		}
	}
}

// WithMaxFrameRate caps the loop at hz frames per second. Zero means
// uncapped.
func WithMaxFrameRate(hz float64) Option {
	return func(g *Game) {
		g.maxFrameRate = hz
	}
}

// WithMaxFrames stops the loop after n frames. Zero runs until Stop or
// context cancellation.
func WithMaxFrames(n uint64) Option {
	return func(g *Game) {
		g.maxFrames = n
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Game) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithFixedStep reports d as every frame's delta time regardless of the
// clock.
func WithFixedStep(d time.Duration) Option {
	return func(g *Game) {
		g.fixedStep = d
	}
}

// WithFrameHook runs fn on the Game role after each frame is submitted.
func WithFrameHook(fn func(FrameInfo)) Option {
	return func(g *Game) {
		g.hook = fn
	}
}

// New creates a game over the given render queue, scene and renderer and
// binds the Game role's submitter to its mailbox.
func New(reg *dispatch.Registry, q *renderqueue.Queue, s *scene.Scene, r *renderer.Renderer, opts ...Option) *Game {
	g := &Game{
		reg:            reg,
		queue:          q,
		scene:          s,
		renderer:       r,
		logger:         reg.Logger(),
		mailbox:        dispatch.NewMailbox(),
		clock:          wallClock{},
		framesInFlight: DefaultFramesInFlight,
		tracked:        make(map[*scene.Node]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.behaviors = behavior.NewManager(g.logger)
	g.slots = semaphore.NewWeighted(int64(g.framesInFlight))
	reg.Bind(dispatch.RoleGame, reg.MailboxSubmitter(dispatch.RoleGame, g.mailbox))
	return g
}

// Behaviors returns the behavior manager. Game role only.
func (g *Game) Behaviors() *behavior.Manager { return g.behaviors }

// Scene returns the render scene.
func (g *Game) Scene() *scene.Scene { return g.scene }

// Root returns the entry node. Game role only.
func (g *Game) Root() scene.SceneNode { return g.root }

// Frame returns the number of frames submitted. Game role only.
func (g *Game) Frame() uint64 { return g.frame }

// Stop asks the loop to finish the current frame and shut down.
func (g *Game) Stop() {
	g.stopped.Store(true)
}

// Submit schedules task on the Game role.
func (g *Game) Submit(task dispatch.Task) error {
	return g.reg.Submit(dispatch.RoleGame, task)
}

// RegisterCleanupTask pushes task onto the game cleanup stack. Cleanup runs
// LIFO on the Game role after the scene has been torn down.
func (g *Game) RegisterCleanupTask(task dispatch.Task) {
	if task == nil {
		return
	}
	g.cleanupMu.Lock()
	g.cleanup = append(g.cleanup, task)
	g.cleanupMu.Unlock()
}

// Recollect requests a tree walk before the next frame's scene updates.
// Call it after adding or removing children. Game role only.
func (g *Game) Recollect() {
	g.needsRecollect = true
}

// Run binds the calling goroutine as the Game role and runs the loop until
// Stop, the frame limit, or ctx cancellation. Cancellation is a normal
// shutdown and yields a nil error.
func (g *Game) Run(ctx context.Context, root scene.SceneNode) error {
	if root == nil {
		return ErrNoEntry
	}
	if !g.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}
	if err := g.reg.BindCurrent(dispatch.RoleGame); err != nil {
		return err
	}
	defer g.reg.ReleaseRoleThread(dispatch.RoleGame)

	g.logger.Info("game start",
		"frames_in_flight", g.framesInFlight,
		"max_frame_rate", g.maxFrameRate,
		"inline", g.queue.Inline())

	if err := g.startRender(ctx); err != nil {
		return err
	}

	g.mailbox.Drain()
	if err := g.sync(ctx); err != nil {
		return errors.Join(err, g.shutdown(ctx))
	}

	g.root = root
	g.lastMark = g.clock.Now()
	g.recollect()

	var loopErr error
	for !g.stopped.Load() {
		if g.maxFrames > 0 && g.frame >= g.maxFrames {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if err := g.step(ctx); err != nil {
			if ctx.Err() == nil {
				loopErr = err
			}
			break
		}
	}

	g.logger.Info("game stop", "frames", g.frame, "elapsed", g.elapsed)
	return errors.Join(loopErr, g.shutdown(ctx))
}

// startRender brings up the render queue and initializes the renderer on
// the render goroutine.
func (g *Game) startRender(ctx context.Context) error {
	if err := g.queue.Init(); err != nil {
		return fmt.Errorf("render queue init: %w", err)
	}

	var initErr error
	if err := g.reg.Submit(dispatch.RoleRender, func() {
		initErr = g.renderer.Init()
	}); err != nil {
		return fmt.Errorf("submit renderer init: %w", err)
	}
	if err := g.sync(ctx); err != nil {
		return err
	}
	if initErr != nil {
		g.stopQueue(ctx)
		return fmt.Errorf("renderer init: %w", initErr)
	}

	g.queue.RegisterCleanupTask(g.renderer.Deinit)
	g.RegisterCleanupTask(func() { g.stopQueue(ctx) })
	return nil
}

func (g *Game) stopQueue(ctx context.Context) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := g.queue.StopAndWait(sctx); err != nil {
		g.logger.Error("render queue did not stop", "error", err)
	}
}

// sync waits until every render task submitted so far has run. Inline
// queues are pumped instead, since the Game goroutine is also Render.
func (g *Game) sync(ctx context.Context) error {
	if g.queue.Inline() {
		_, err := g.queue.Pump()
		return err
	}
	f, err := g.queue.Fence()
	if err != nil {
		return err
	}
	return f.Wait(ctx)
}

// step runs one frame.
func (g *Game) step(ctx context.Context) error {
	g.mailbox.Drain()

	if err := g.pace(ctx); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, slotTimeout)
	err := g.slots.Acquire(sctx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("render goroutine behind, retrying", "frame", g.frame+1)
		return nil
	}

	dt := g.mark()
	g.frame++

	g.behaviors.Update(dt)
	for _, n := range g.updateNodes {
		base := n.Base()
		if base.Tick() {
			n.Update(dt)
		}
		if base.InScene() {
			n.UpdateSceneProxy()
		}
	}

	if g.needsRecollect {
		g.recollect()
	}
	info := FrameInfo{
		Frame:     g.frame,
		DeltaTime: dt,
		Elapsed:   g.elapsed,
		Added:     len(g.newNodes),
		Removed:   len(g.removedNodes),
		Nodes:     len(g.updateNodes),
	}
	for _, n := range g.newNodes {
		if err := g.scene.AddNode(n); err != nil {
			g.logger.Warn("add node failed", "node", n.Base().Name(), "error", err)
		}
	}
	g.newNodes = g.newNodes[:0]
	for _, n := range g.removedNodes {
		if err := g.scene.RemoveNode(n); err != nil {
			g.logger.Warn("remove node failed", "node", n.Base().Name(), "error", err)
		}
	}
	g.removedNodes = g.removedNodes[:0]

	frame := g.frame
	if err := g.reg.Submit(dispatch.RoleRender, func() {
		defer g.slots.Release(1)
		if _, err := g.renderer.Frame(dt); err != nil {
			g.logger.Warn("frame failed", "frame", frame, "error", err)
		}
	}); err != nil {
		g.slots.Release(1)
		return fmt.Errorf("submit frame %d: %w", frame, err)
	}

	if g.queue.Inline() {
		if _, err := g.queue.Pump(); err != nil {
			return err
		}
	}
	if g.hook != nil {
		g.hook(info)
	}
	return nil
}

// pace sleeps off the rest of the frame budget when a frame rate cap is set.
func (g *Game) pace(ctx context.Context) error {
	if g.maxFrameRate <= 0 {
		return nil
	}
	budget := time.Duration(float64(time.Second) / g.maxFrameRate)
	if wait := budget - g.clock.Now().Sub(g.lastMark); wait > 0 {
		return g.clock.Sleep(ctx, wait)
	}
	return nil
}

func (g *Game) mark() float32 {
	now := g.clock.Now()
	d := now.Sub(g.lastMark)
	g.lastMark = now
	if g.fixedStep > 0 {
		d = g.fixedStep
	}
	g.elapsed += d
	return float32(d.Seconds())
}

// recollect walks the tree breadth first and diffs it against the last
// walk. New nodes are queued for AddNode and vanished ones for RemoveNode,
// both in walk order.
func (g *Game) recollect() {
	prev := g.updateNodes
	seen := make(map[*scene.Node]bool, len(prev))
	next := make([]scene.SceneNode, 0, len(prev))

	scene.Walk(g.root, func(n scene.SceneNode) {
		base := n.Base()
		seen[base] = true
		next = append(next, n)
		if !g.tracked[base] {
			g.newNodes = append(g.newNodes, n)
		}
	})
	for _, n := range prev {
		if !seen[n.Base()] {
			g.removedNodes = append(g.removedNodes, n)
		}
	}

	g.updateNodes = next
	g.tracked = seen
	g.needsRecollect = false
}

// shutdown tears the scene down on the render goroutine, waits for it, then
// runs the game cleanup stack.
func (g *Game) shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := g.scene.ClearNodes(); err != nil {
		errs = append(errs, fmt.Errorf("clear scene: %w", err))
	}
	if err := g.sync(sctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for scene teardown: %w", err))
	}

	g.root = nil
	g.updateNodes = nil
	g.tracked = make(map[*scene.Node]bool)
	g.newNodes, g.removedNodes = nil, nil
	g.behaviors.Clear()

	g.mailbox.Drain()
	g.cleanupMu.Lock()
	tasks := g.cleanup
	g.cleanup = nil
	g.cleanupMu.Unlock()
	for i := len(tasks) - 1; i >= 0; i-- {
		tasks[i]()
	}
	g.mailbox.Close()

	return errors.Join(errs...)
}
