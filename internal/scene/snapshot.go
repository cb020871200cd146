package scene

import (
	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/reclaim"
)

// Snapshot is a plain value copied from a Node on the game role and applied
// to its Proxy on the render role. Implementations must not hold pointers
// into game-owned state.
type Snapshot interface {
	Kind() string
}

// RenderFlags is the base snapshot every node pushes when its render flags
// change.
type RenderFlags struct {
	NeedsRender     bool
	NeedsPostRender bool
}

// Kind implements Snapshot.
func (RenderFlags) Kind() string { return "flags" }

// RenderContext is handed to Render and PostRender for one frame.
type RenderContext struct {
	// Frame is the render frame number, starting at 1.
	Frame uint64

	// DeltaTime is the game time elapsed for the frame, in seconds.
	DeltaTime float32

	// Device is the GPU service.
	Device backend.Device

	// Buffers retires dynamic GPU storage until no frame in flight uses it.
	Buffers *reclaim.Reclaimer[backend.Buffer]

	// Scene is the scene being drawn.
	Scene *Scene

	// FrameWidth and FrameHeight are the target size in pixels.
	FrameWidth, FrameHeight float32
}

// GPU bundles the render-side services proxies allocate from.
type GPU struct {
	Device  backend.Device
	Buffers *reclaim.Reclaimer[backend.Buffer]
}
