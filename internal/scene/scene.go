package scene

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/safelist"
)

// Scene is the render-side registry of proxies.
//
// AddNode, RemoveNode and ClearNodes are called on the game role and only
// submit render tasks. Everything else runs on the render role: the packed
// array and the "added"/"removed" lists are render-owned and unlocked.
//
// INVARIANTS:
//   - packed[i].packedIndex == i after every fold
//   - an entry is in at most one of added, removed-not-yet-folded
//   - an entry removed before it was folded never reaches the packed array
type Scene struct {
	reg      *dispatch.Registry
	logger   *slog.Logger
	observer Observer
	gpu      GPU

	packed  []*ProxyInfo
	added   safelist.List[*ProxyInfo]
	removed safelist.List[*ProxyInfo]

	view, prevView             mgl32.Mat4
	projection, prevProjection mgl32.Mat4
}

// Option configures a Scene.
type Option func(*Scene)

// WithLogger sets the scene logger. Defaults to the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scene) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver installs a lifecycle observer.
func WithObserver(o Observer) Option {
	return func(s *Scene) {
		s.observer = o
	}
}

// WithGPU sets the services proxies use to create render resources.
func WithGPU(gpu GPU) Option {
	return func(s *Scene) {
		s.gpu = gpu
	}
}

// New creates an empty scene that submits render work through reg.
func New(reg *dispatch.Registry, opts ...Option) *Scene {
	s := &Scene{
		reg:            reg,
		logger:         reg.Logger(),
		view:           mgl32.Ident4(),
		prevView:       mgl32.Ident4(),
		projection:     mgl32.Ident4(),
		prevProjection: mgl32.Ident4(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scene) emit(e Event) {
	if s.observer != nil {
		s.observer(e)
	}
}

// AddNode creates node's proxy and schedules it to join the scene at the
// next fold. A node that returns no proxy is ignored. Adding a node already
// in a scene is a logged no-op.
func (s *Scene) AddNode(node SceneNode) error {
	n := node.Base()
	if n.InScene() {
		s.logger.Warn("node already in scene", "node", n.name)
		return nil
	}

	proxy := node.CreateSceneProxy()
	if proxy == nil {
		return nil
	}
	pb := proxy.Base()
	pb.init(proxy, n, s)

	info := newProxyInfo(node, proxy)
	pb.info = info
	pb.Retain() // owned by the add task

	n.info = info
	n.scene = s
	n.renderStateDirty = false

	s.emit(Event{Kind: EventAddQueued, Node: n.name, Index: -1, Size: -1})
	if err := s.reg.Submit(dispatch.RoleRender, func() { s.addTask(info) }); err != nil {
		// The render role never saw the proxy and will not run again, so the
		// references are dropped here without running the destructor.
		n.info = nil
		n.scene = nil
		pb.Drop()
		pb.Drop()
		info.Release()
		info.setState(InfoRetired)
		return fmt.Errorf("add node %q: %w", n.name, err)
	}
	return nil
}

func (s *Scene) addTask(info *ProxyInfo) {
	n := info.node.Base()
	pb := info.proxy.Base()

	if info.cancelled.Load() {
		s.abandon(info)
		s.emit(Event{Kind: EventAddCancelled, Node: info.name, Index: -1, Size: len(s.packed)})
		return
	}
	if !info.proxy.CreateRenderResources() {
		s.logger.Warn("proxy render resources failed, node stays out of scene", "node", info.name)
		s.abandon(info)
		s.emit(Event{Kind: EventCreateFailed, Node: info.name, Index: -1, Size: len(s.packed)})
		return
	}

	n.proxy.Store(pb)
	info.setState(InfoAdded)
	s.added.PushBack(&info.link)
	pb.Release()
	s.emit(Event{Kind: EventAdded, Node: info.name, Index: -1, Size: len(s.packed)})
}

// abandon drops an add that never created resources: the task reference,
// the alive reference and the info.
func (s *Scene) abandon(info *ProxyInfo) {
	pb := info.proxy.Base()
	info.setState(InfoRetired)
	pb.Release()
	pb.Release()
	info.Release()
}

// RemoveNode schedules node's proxy to leave the scene. A removal issued
// before the add task ran cancels the add outright; an entry still waiting
// for its first fold is finalized immediately; a packed entry is queued for
// the next fold. Removing a node without a proxy, or removing twice, is a
// no-op.
func (s *Scene) RemoveNode(node SceneNode) error {
	n := node.Base()
	info := n.info
	if info == nil || n.scene != s {
		return nil
	}
	n.info = nil
	info.cancelled.Store(true)

	s.emit(Event{Kind: EventRemoveQueued, Node: info.name, Index: -1, Size: -1})
	if err := s.reg.Submit(dispatch.RoleRender, func() { s.removeTask(info) }); err != nil {
		return fmt.Errorf("remove node %q: %w", info.name, err)
	}
	return nil
}

func (s *Scene) removeTask(info *ProxyInfo) {
	name := info.name
	switch info.State() {
	case InfoAdded:
		s.added.Remove(&info.link)
		s.finalize(info)
		s.emit(Event{Kind: EventRemovedPending, Node: name, Index: -1, Size: len(s.packed)})
	case InfoPacked:
		info.setState(InfoRemoving)
		s.removed.PushBack(&info.link)
		s.emit(Event{Kind: EventRemoveDeferred, Node: name, Index: info.packedIndex, Size: len(s.packed)})
	default:
		// Add was cancelled or failed, or a removal is already queued.
		s.logger.Debug("remove of inactive proxy ignored", "node", name, "state", info.State())
	}
}

// finalize destroys the entry's resources and drops both references. The
// entry must already be out of every list and the packed array.
func (s *Scene) finalize(info *ProxyInfo) {
	pb := info.proxy.Base()
	info.proxy.DestroyRenderResources()
	info.node.Base().proxy.CompareAndSwap(pb, nil)
	info.packedIndex = -1
	info.setState(InfoRetired)
	pb.Release()
	info.Release()
}

// ClearNodes schedules a teardown of every entry: packed, pending addition
// or pending removal. Used at shutdown.
func (s *Scene) ClearNodes() error {
	if err := s.reg.Submit(dispatch.RoleRender, s.clearTask); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}
	return nil
}

func (s *Scene) clearTask() {
	s.removed.Clear()
	for _, info := range s.packed {
		name := info.name
		s.finalize(info)
		s.emit(Event{Kind: EventCleared, Node: name, Index: -1, Size: 0})
	}
	clear(s.packed)
	s.packed = s.packed[:0]

	s.added.Each(func(link *safelist.Node[*ProxyInfo]) {
		info := link.Value
		s.added.Remove(link)
		name := info.name
		s.finalize(info)
		s.emit(Event{Kind: EventCleared, Node: name, Index: -1, Size: 0})
	})
	s.logger.Debug("scene cleared")
}

// UpdateSceneProxies folds pending changes into the packed array: removals
// first (compacting by swap-with-last), then additions. Render role only;
// must not overlap DoRender or DoPostRender.
func (s *Scene) UpdateSceneProxies() error {
	if err := s.reg.Require(dispatch.RoleRender, "Scene.UpdateSceneProxies"); err != nil {
		return err
	}

	s.removed.Each(func(link *safelist.Node[*ProxyInfo]) {
		info := link.Value
		s.removed.Remove(link)

		idx := info.packedIndex
		last := len(s.packed) - 1
		if idx != last {
			moved := s.packed[last]
			s.packed[idx] = moved
			moved.packedIndex = idx
		}
		s.packed[last] = nil
		s.packed = s.packed[:last]

		name := info.name
		s.finalize(info)
		s.emit(Event{Kind: EventUnpacked, Node: name, Index: idx, Size: len(s.packed)})
	})

	s.added.Each(func(link *safelist.Node[*ProxyInfo]) {
		info := link.Value
		s.added.Remove(link)

		info.packedIndex = len(s.packed)
		info.setState(InfoPacked)
		s.packed = append(s.packed, info)
		s.emit(Event{Kind: EventPacked, Node: info.name, Index: info.packedIndex, Size: len(s.packed)})
	})
	return nil
}

// DoRender calls Render on every packed proxy whose NeedsRender is set.
// Render role only.
func (s *Scene) DoRender(ctx *RenderContext) error {
	if err := s.reg.Require(dispatch.RoleRender, "Scene.DoRender"); err != nil {
		return err
	}
	ctx.Scene = s
	for _, info := range s.packed {
		if info.proxy.Base().needsRender {
			info.proxy.Render(ctx)
		}
	}
	return nil
}

// DoPostRender calls PostRender on every packed proxy whose NeedsPostRender
// is set. Render role only.
func (s *Scene) DoPostRender(ctx *RenderContext) error {
	if err := s.reg.Require(dispatch.RoleRender, "Scene.DoPostRender"); err != nil {
		return err
	}
	ctx.Scene = s
	for _, info := range s.packed {
		if info.proxy.Base().needsPostRender {
			info.proxy.PostRender(ctx)
		}
	}
	return nil
}

// Len returns the packed array length. Render role only.
func (s *Scene) Len() int {
	return len(s.packed)
}

// Pending returns the sizes of the added and removed lists. Render role only.
func (s *Scene) Pending() (added, removed int) {
	return s.added.Len(), s.removed.Len()
}

// Infos returns the packed entries in packed order. Render role only.
func (s *Scene) Infos() []*ProxyInfo {
	return s.packed
}

// Nodes returns the nodes of the packed entries in packed order. Render
// role only.
func (s *Scene) Nodes() []SceneNode {
	out := make([]SceneNode, len(s.packed))
	for i, info := range s.packed {
		out[i] = info.node
	}
	return out
}

// SetViewMatrix stores m, keeping the previous value. Render role only.
func (s *Scene) SetViewMatrix(m mgl32.Mat4) {
	s.prevView = s.view
	s.view = m
}

// SetProjectionMatrix stores m, keeping the previous value. Render role only.
func (s *Scene) SetProjectionMatrix(m mgl32.Mat4) {
	s.prevProjection = s.projection
	s.projection = m
}

// ViewMatrix returns the current view matrix.
func (s *Scene) ViewMatrix() mgl32.Mat4 { return s.view }

// ProjectionMatrix returns the current projection matrix.
func (s *Scene) ProjectionMatrix() mgl32.Mat4 { return s.projection }

// PrevViewMatrix returns the view matrix of the previous frame.
func (s *Scene) PrevViewMatrix() mgl32.Mat4 { return s.prevView }

// PrevProjectionMatrix returns the projection matrix of the previous frame.
func (s *Scene) PrevProjectionMatrix() mgl32.Mat4 { return s.prevProjection }

// GPU returns the render services. Render role only.
func (s *Scene) GPU() GPU { return s.gpu }

// Logger returns the scene logger. Proxies log through it.
func (s *Scene) Logger() *slog.Logger { return s.logger }

// Registry returns the dispatch registry the scene submits through.
func (s *Scene) Registry() *dispatch.Registry { return s.reg }
