// Package renderer drives one frame of render-role work: generation
// advance, the scene fold, the render and post-render passes, and buffer
// collection.
//
// Every method except New and the option setters runs on the Render role.
// The Game role reaches the renderer only by submitting tasks.
package renderer

import (
	"fmt"
	"log/slog"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/scene"
)

// FrameStats describes a finished frame.
type FrameStats struct {
	Frame      uint64
	Generation uint64
	Packed     int
	Collected  int
	Retired    int
}

// Renderer owns the per-frame render state.
type Renderer struct {
	scene   *scene.Scene
	dev     backend.Device
	buffers *reclaim.Reclaimer[backend.Buffer]
	logger  *slog.Logger

	width, height float32
	completion    func(FrameStats)

	ready bool
	frame uint64
	last  FrameStats
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the renderer logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFrameSize sets the render target size handed to proxies.
func WithFrameSize(width, height float32) Option {
	return func(r *Renderer) {
		r.width, r.height = width, height
	}
}

// WithCompletion installs a callback run on the Render role after every
// frame, including frames that failed.
func WithCompletion(fn func(FrameStats)) Option {
	return func(r *Renderer) {
		r.completion = fn
	}
}

// New creates a renderer for s. The scene's GPU bundle supplies the device
// and the buffer reclaimer.
func New(s *scene.Scene, opts ...Option) *Renderer {
	gpu := s.GPU()
	r := &Renderer{
		scene:   s,
		dev:     gpu.Device,
		buffers: gpu.Buffers,
		logger:  slog.Default(),
		width:   1280,
		height:  720,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init prepares the renderer. Render role only.
func (r *Renderer) Init() error {
	if err := r.scene.Registry().Require(dispatch.RoleRender, "renderer.Init"); err != nil {
		return err
	}
	if r.dev == nil || r.buffers == nil {
		return fmt.Errorf("renderer init: scene has no GPU device")
	}
	r.ready = true
	r.logger.Debug("renderer initialized",
		"width", r.width,
		"height", r.height,
		"frames_in_flight", r.buffers.InFlight())
	return nil
}

// Ready reports whether Init succeeded and Deinit has not run.
func (r *Renderer) Ready() bool { return r.ready }

// Frame renders one frame. Render role only.
//
// Order matters: the generation advances before any proxy writes so that a
// buffer retired this frame is stamped with this frame, and collection runs
// after the passes so that buffers retired by earlier frames are freed once
// no frame in flight can read them.
func (r *Renderer) Frame(dt float32) (stats FrameStats, err error) {
	if err := r.scene.Registry().Require(dispatch.RoleRender, "renderer.Frame"); err != nil {
		return FrameStats{}, err
	}
	r.frame++
	stats.Frame = r.frame
	defer func() {
		r.last = stats
		if r.completion != nil {
			r.completion(stats)
		}
	}()

	if !r.ready {
		return stats, fmt.Errorf("frame %d: renderer not initialized", r.frame)
	}

	stats.Generation = r.buffers.Advance()
	if err := r.scene.UpdateSceneProxies(); err != nil {
		return stats, fmt.Errorf("frame %d: fold: %w", r.frame, err)
	}
	stats.Packed = r.scene.Len()

	ctx := &scene.RenderContext{
		Frame:       r.frame,
		DeltaTime:   dt,
		Device:      r.dev,
		Buffers:     r.buffers,
		FrameWidth:  r.width,
		FrameHeight: r.height,
	}
	if err := r.scene.DoRender(ctx); err != nil {
		return stats, fmt.Errorf("frame %d: render: %w", r.frame, err)
	}
	if err := r.scene.DoPostRender(ctx); err != nil {
		return stats, fmt.Errorf("frame %d: post-render: %w", r.frame, err)
	}

	stats.Collected = r.buffers.Collect()
	stats.Retired = r.buffers.Pending()
	return stats, nil
}

// Last returns the stats of the most recent frame.
func (r *Renderer) Last() FrameStats { return r.last }

// Deinit frees every retired buffer. Run it from the render queue's
// cleanup stack after the scene has been cleared.
func (r *Renderer) Deinit() {
	if !r.ready {
		return
	}
	r.ready = false
	freed := r.buffers.Flush()
	r.logger.Debug("renderer deinitialized", "frames", r.frame, "buffers_freed", freed)
}
