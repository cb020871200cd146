// Package backend defines the opaque GPU service the render role talks to,
// plus a headless implementation that records calls instead of drawing.
package backend

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrInjectedFailure is returned by Headless for operations configured to fail.
var ErrInjectedFailure = errors.New("backend: injected failure")

// Buffer identifies a GPU buffer.
type Buffer struct {
	ID   uint64
	Size int
}

// DrawCall describes one recorded draw.
type DrawCall struct {
	Label  string
	Buffer Buffer
	Count  int
}

// Device is the GPU service used by proxies. All methods are called from the
// render role only.
type Device interface {
	CreateBuffer(size int) (Buffer, error)
	WriteBuffer(b Buffer, data []byte) error
	DestroyBuffer(b Buffer)
	Draw(call DrawCall)
}

// Headless is an in-memory Device. It tracks live buffers so tests can
// detect leaks and use-after-destroy.
//
// Headless is lock-guarded so tests may inspect it from another goroutine
// after a fence.
type Headless struct {
	mu      sync.Mutex
	nextID  uint64
	live    map[uint64]Buffer
	data    map[uint64][]byte
	draws   []DrawCall
	created int
	freed   int

	failCreate int // fail the next n CreateBuffer calls
	logger     *slog.Logger
}

// HeadlessOption configures a Headless device.
type HeadlessOption func(*Headless)

// WithHeadlessLogger sets the device logger.
func WithHeadlessLogger(l *slog.Logger) HeadlessOption {
	return func(h *Headless) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHeadless creates an empty headless device.
func NewHeadless(opts ...HeadlessOption) *Headless {
	h := &Headless{
		live:   make(map[uint64]Buffer),
		data:   make(map[uint64][]byte),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FailNextCreates makes the next n CreateBuffer calls fail.
func (h *Headless) FailNextCreates(n int) {
	h.mu.Lock()
	h.failCreate = n
	h.mu.Unlock()
}

// CreateBuffer allocates a buffer of size bytes.
func (h *Headless) CreateBuffer(size int) (Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.failCreate > 0 {
		h.failCreate--
		return Buffer{}, fmt.Errorf("create buffer size=%d: %w", size, ErrInjectedFailure)
	}
	h.nextID++
	b := Buffer{ID: h.nextID, Size: size}
	h.live[b.ID] = b
	h.created++
	h.logger.Debug("buffer created", "id", b.ID, "size", size)
	return b, nil
}

// WriteBuffer uploads data into b.
func (h *Headless) WriteBuffer(b Buffer, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.live[b.ID]; !ok {
		return fmt.Errorf("write buffer %d: not live", b.ID)
	}
	if len(data) > b.Size {
		return fmt.Errorf("write buffer %d: %d bytes exceeds size %d", b.ID, len(data), b.Size)
	}
	h.data[b.ID] = append(h.data[b.ID][:0], data...)
	return nil
}

// DestroyBuffer frees b. Destroying an unknown buffer is logged.
func (h *Headless) DestroyBuffer(b Buffer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.live[b.ID]; !ok {
		h.logger.Warn("destroy of unknown buffer", "id", b.ID)
		return
	}
	delete(h.live, b.ID)
	delete(h.data, b.ID)
	h.freed++
	h.logger.Debug("buffer destroyed", "id", b.ID)
}

// Draw records a draw call.
func (h *Headless) Draw(call DrawCall) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.draws = append(h.draws, call)
}

// Live returns the number of buffers not yet destroyed.
func (h *Headless) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// IsLive reports whether b has not been destroyed.
func (h *Headless) IsLive(b Buffer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.live[b.ID]
	return ok
}

// Contents returns a copy of the bytes last written to b.
func (h *Headless) Contents(b Buffer) []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]byte(nil), h.data[b.ID]...)
}

// Stats returns lifetime create/destroy counts.
func (h *Headless) Stats() (created, freed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.created, h.freed
}

// Draws returns and clears the recorded draw calls.
func (h *Headless) Draws() []DrawCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.draws
	h.draws = nil
	return out
}
