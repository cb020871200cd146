package dispatch

import "sync"

// Mailbox is a thread-safe FIFO of tasks addressed to one role.
//
// The mailbox is unbounded so that submission never blocks the producer.
// Any goroutine may Enqueue; exactly one goroutine (the role's) drains it.
//
// The mailbox uses a channel for signaling so the draining loop can wait
// with select alongside ctx.Done() and its own stop channels.
type Mailbox struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a task to the back of the mailbox.
// Thread-safe: may be called from any goroutine.
// Returns false if the mailbox is closed; the task is not retained.
func (m *Mailbox) Enqueue(t Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.tasks = append(m.tasks, t)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case m.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front task without blocking.
// Returns (nil, false) if the mailbox is empty.
func (m *Mailbox) TryDequeue() (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return nil, false
	}

	t := m.tasks[0]

	// Nil the slot so captured state can be collected once the task ran.
	m.tasks[0] = nil

	if len(m.tasks) == 1 {
		m.tasks = m.tasks[:0]
	} else {
		m.tasks = m.tasks[1:]
	}

	return t, true
}

// Drain runs every task currently queued, plus any they enqueue, until the
// mailbox is empty. Returns the number of tasks run.
func (m *Mailbox) Drain() int {
	n := 0
	for {
		t, ok := m.TryDequeue()
		if !ok {
			return n
		}
		t()
		n++
	}
}

// Wait returns a channel that signals when tasks may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-m.Wait():
//	    // TryDequeue
//	}
func (m *Mailbox) Wait() <-chan struct{} {
	return m.signal
}

// Len returns the number of queued tasks.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close stops accepting tasks. Tasks already queued remain dequeueable.
// Wakes any blocked waiters by closing the signal channel.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	close(m.signal)
}
