// Package renderqueue implements the serialized task queue owned by the
// render role.
//
// ARCHITECTURE:
//
// Single consumer:
// One goroutine (locked to its OS thread) acts as the render role and runs
// tasks strictly in the order they were accepted. Producers on any goroutine
// enqueue through the dispatch Registry; enqueueing never blocks.
//
// Lifecycle:
//
//	Uninitialized -> Running -> Stopping -> Stopped
//
// Tasks enqueued before Init are buffered and run once the loop starts.
// Stop is idempotent and lets every task already accepted run. After the loop
// exits the cleanup stack is drained last-registered-first, still on the
// render goroutine, and only then is the render role released. A later Init
// starts a new session.
package renderqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/roach88/proxysync/internal/dispatch"
)

// State is the queue lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyRunning is returned by Init while a session is active.
var ErrAlreadyRunning = errors.New("renderqueue: already running")

// Queue is the render role's serialized executor.
//
// Thread-safety model:
//   - Enqueue / Stop / RegisterCleanupTask / Fence: any goroutine
//   - Init / StopAndWait: any goroutine except the render goroutine
//   - Pump (inline mode): the goroutine that called Init only
type Queue struct {
	reg    *dispatch.Registry
	logger *slog.Logger
	inline bool

	state atomic.Int32

	mu      sync.Mutex // guards mailbox and done across sessions
	mailbox *dispatch.Mailbox
	done    chan struct{}

	cleanupMu sync.Mutex
	cleanup   []dispatch.Task

	pending  atomic.Int64 // accepted but not yet finished
	draining bool         // inline: Pump in progress
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue logger. Defaults to the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithInline runs the queue without a dedicated goroutine: Init binds the
// caller as the render role and queued tasks run when the caller invokes
// Pump. Intended for tests and single-threaded tools.
func WithInline(inline bool) Option {
	return func(q *Queue) {
		q.inline = inline
	}
}

// New creates a queue and installs it as the registry's render submitter.
// The queue starts Uninitialized; tasks enqueued now run after Init.
func New(reg *dispatch.Registry, opts ...Option) *Queue {
	q := &Queue{
		reg:     reg,
		logger:  reg.Logger(),
		mailbox: dispatch.NewMailbox(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	reg.Bind(dispatch.RoleRender, q.Enqueue)
	return q
}

// State returns the current lifecycle state.
func (q *Queue) State() State {
	return State(q.state.Load())
}

// Inline reports whether the queue runs without its own goroutine.
func (q *Queue) Inline() bool {
	return q.inline
}

// Pending returns the number of accepted tasks that have not finished.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// Done returns a channel closed when the current session has fully stopped,
// cleanup stack included.
func (q *Queue) Done() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.done
}

// Init starts a session. From Stopped it starts a fresh one; while Running
// or Stopping it returns ErrAlreadyRunning.
func (q *Queue) Init() error {
	q.mu.Lock()
	st := q.State()
	switch st {
	case StateRunning, StateStopping:
		q.mu.Unlock()
		return ErrAlreadyRunning
	case StateStopped:
		q.mailbox = dispatch.NewMailbox()
		q.done = make(chan struct{})
		q.reg.Bind(dispatch.RoleRender, q.Enqueue)
	}
	mb := q.mailbox
	done := q.done
	q.state.Store(int32(StateRunning))
	q.mu.Unlock()

	if q.inline {
		if err := q.reg.BindCurrent(dispatch.RoleRender); err != nil {
			q.state.Store(int32(st))
			return fmt.Errorf("bind render role: %w", err)
		}
		q.logger.Info("render queue started", "mode", "inline", "buffered", mb.Len())
		return nil
	}

	started := make(chan error, 1)
	go q.run(mb, done, started)
	if err := <-started; err != nil {
		return fmt.Errorf("bind render role: %w", err)
	}
	q.logger.Info("render queue started", "mode", "goroutine", "buffered", mb.Len())
	return nil
}

func (q *Queue) run(mb *dispatch.Mailbox, done chan struct{}, started chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := q.reg.BindCurrent(dispatch.RoleRender); err != nil {
		// Another goroutine still holds the render role; this session never ran.
		mb.Close()
		q.state.Store(int32(StateStopped))
		close(done)
		started <- err
		return
	}
	started <- nil

	for {
		if t, ok := mb.TryDequeue(); ok {
			q.runTask(t)
			continue
		}
		if q.State() == StateStopping {
			break
		}
		<-mb.Wait()
	}

	q.finish(mb, done)
}

// finish closes the session: stragglers, cleanup stack, role release.
// Runs on the render goroutine.
func (q *Queue) finish(mb *dispatch.Mailbox, done chan struct{}) {
	// Stopped is published before the mailbox closes, so an enqueue that is
	// refused always observes Stopped. Tasks accepted before Close still run.
	q.state.Store(int32(StateStopped))
	mb.Close()
	stragglers := 0
	for {
		t, ok := mb.TryDequeue()
		if !ok {
			break
		}
		q.runTask(t)
		stragglers++
	}

	cleaned := q.drainCleanup()

	q.reg.ReleaseRoleThread(dispatch.RoleRender)
	q.logger.Info("render queue stopped", "stragglers", stragglers, "cleanup_tasks", cleaned)
	close(done)
}

func (q *Queue) runTask(t dispatch.Task) {
	defer q.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			var me *dispatch.MisuseError
			if err, ok := r.(error); ok && errors.As(err, &me) && q.reg.Strict() {
				panic(r)
			}
			q.logger.Error("render task panicked", "panic", r)
		}
	}()
	t()
}

// Enqueue accepts task for the render role. Valid in every state except
// Stopped, where it is ENQUEUE_AFTER_STOP misuse; the task is never dropped
// silently.
func (q *Queue) Enqueue(task dispatch.Task) error {
	if task == nil {
		return nil
	}
	q.mu.Lock()
	mb := q.mailbox
	q.mu.Unlock()

	q.pending.Add(1)
	if q.State() == StateStopped || !mb.Enqueue(task) {
		q.pending.Add(-1)
		return q.reg.Misuse(dispatch.NewMisuseError(dispatch.ErrCodeEnqueueAfterStop,
			dispatch.RoleRender, "render queue is stopped"))
	}
	return nil
}

// Pump runs queued tasks in inline mode until the queue is empty, including
// tasks those tasks enqueue. A Pump issued from inside a task returns at
// once; the outer Pump picks the new tasks up in order. If Stop was called,
// Pump also finishes the session. Returns the number of tasks run.
func (q *Queue) Pump() (int, error) {
	if !q.inline {
		return 0, errors.New("renderqueue: Pump requires inline mode")
	}
	if err := q.reg.Require(dispatch.RoleRender, "renderqueue.Pump"); err != nil {
		return 0, err
	}
	if q.draining {
		return 0, nil
	}

	q.mu.Lock()
	mb := q.mailbox
	done := q.done
	q.mu.Unlock()

	q.draining = true
	n := 0
	for {
		t, ok := mb.TryDequeue()
		if !ok {
			break
		}
		q.runTask(t)
		n++
	}
	q.draining = false

	if q.State() == StateStopping {
		q.finish(mb, done)
	}
	return n, nil
}

// Stop requests shutdown. Every task accepted before or during Stopping
// still runs. Idempotent. Stopping a queue that was never initialized moves
// it straight to Stopped and drains the cleanup stack on the caller.
func (q *Queue) Stop() {
	if q.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		q.mu.Lock()
		mb := q.mailbox
		q.mu.Unlock()
		// Sentinel wakes an idle loop. It may lose the race with close.
		q.pending.Add(1)
		if !mb.Enqueue(func() {}) {
			q.pending.Add(-1)
		}
		q.logger.Debug("render queue stopping")
		return
	}

	if q.state.CompareAndSwap(int32(StateUninitialized), int32(StateStopped)) {
		q.mu.Lock()
		mb := q.mailbox
		done := q.done
		q.mu.Unlock()

		mb.Close()
		if n := mb.Len(); n > 0 {
			q.logger.Warn("render queue stopped before init, discarding buffered tasks", "count", n)
			for {
				if _, ok := mb.TryDequeue(); !ok {
					break
				}
				q.pending.Add(-1)
			}
		}
		q.drainCleanup()
		close(done)
	}
}

// StopAndWait stops the queue and blocks until the session has fully ended.
// Calling it from the render goroutine of a threaded queue would deadlock and
// is SELF_WAIT misuse. In inline mode the caller is the executor, so it pumps
// the remaining work itself.
func (q *Queue) StopAndWait(ctx context.Context) error {
	if q.inline {
		if st := q.State(); st == StateRunning || st == StateStopping {
			q.Stop()
			_, err := q.Pump()
			return err
		}
	} else if q.reg.IsCurrent(dispatch.RoleRender) {
		return q.reg.Misuse(dispatch.NewMisuseError(dispatch.ErrCodeSelfWait,
			dispatch.RoleRender, "StopAndWait called from the render goroutine"))
	}

	q.Stop()
	select {
	case <-q.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterCleanupTask pushes task onto the cleanup stack. Cleanup tasks run
// on the render goroutine after the loop exits, most recently registered
// first. Safe from any goroutine.
func (q *Queue) RegisterCleanupTask(task dispatch.Task) {
	if task == nil {
		return
	}
	q.cleanupMu.Lock()
	q.cleanup = append(q.cleanup, task)
	q.cleanupMu.Unlock()
}

func (q *Queue) drainCleanup() int {
	n := 0
	for {
		q.cleanupMu.Lock()
		last := len(q.cleanup) - 1
		if last < 0 {
			q.cleanupMu.Unlock()
			return n
		}
		t := q.cleanup[last]
		q.cleanup[last] = nil
		q.cleanup = q.cleanup[:last]
		q.cleanupMu.Unlock()

		q.runCleanup(t)
		n++
	}
}

func (q *Queue) runCleanup(t dispatch.Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("render cleanup task panicked", "panic", r)
		}
	}()
	t()
}

// Fence submits a fence to the render role. Waiting on it from the render
// goroutine is SELF_WAIT misuse.
func (q *Queue) Fence() (*dispatch.Fence, error) {
	f := dispatch.NewFence(q.reg, dispatch.RoleRender)
	if err := q.Enqueue(f.Signal); err != nil {
		return nil, err
	}
	return f, nil
}
