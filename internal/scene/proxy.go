package scene

import (
	"github.com/roach88/proxysync/internal/dispatch"
	"github.com/roach88/proxysync/internal/refcount"
)

// Proxy is the render-side mirror of a Node. Every method runs on the
// render role only.
type Proxy interface {
	// CreateRenderResources allocates GPU state. Returning false keeps the
	// node out of the scene.
	CreateRenderResources() bool

	// DestroyRenderResources releases GPU state. Called once per successful
	// CreateRenderResources.
	DestroyRenderResources()

	Render(ctx *RenderContext)
	PostRender(ctx *RenderContext)

	// ApplySnapshot consumes a value pushed from the game role. Subtypes
	// handle their own snapshot kinds and delegate the rest to ProxyBase.
	ApplySnapshot(s Snapshot)

	// Base returns the embedded ProxyBase.
	Base() *ProxyBase
}

// ProxyBase holds the state every proxy shares. Concrete proxies embed it.
type ProxyBase struct {
	refcount.Counted

	self  Proxy
	info  *ProxyInfo // non-owning
	scene *Scene     // non-owning
	name  string

	needsRender     bool
	needsPostRender bool
	destroyed       bool
}

// init wires the proxy to its node. Count starts at 1.
func (p *ProxyBase) init(self Proxy, n *Node, s *Scene) {
	p.self = self
	p.scene = s
	p.name = n.name
	p.needsRender = n.needsRender
	p.needsPostRender = n.needsPostRender
	p.Counted.Init(p.onDestroy)
}

func (p *ProxyBase) onDestroy() {
	p.destroyed = true
	if p.scene != nil {
		p.scene.emit(Event{Kind: EventDestroyed, Node: p.name, Index: -1, Size: -1})
	}
}

// Base implements Proxy.
func (p *ProxyBase) Base() *ProxyBase { return p }

// CreateRenderResources implements Proxy. The base proxy owns no resources.
func (p *ProxyBase) CreateRenderResources() bool { return true }

// DestroyRenderResources implements Proxy.
func (p *ProxyBase) DestroyRenderResources() {}

// Render implements Proxy.
func (p *ProxyBase) Render(ctx *RenderContext) {}

// PostRender implements Proxy.
func (p *ProxyBase) PostRender(ctx *RenderContext) {}

// ApplySnapshot implements Proxy for RenderFlags.
func (p *ProxyBase) ApplySnapshot(s Snapshot) {
	if f, ok := s.(RenderFlags); ok {
		p.needsRender = f.NeedsRender
		p.needsPostRender = f.NeedsPostRender
	}
}

// NeedsRender reports whether Render is called for this proxy.
func (p *ProxyBase) NeedsRender() bool { return p.needsRender }

// NeedsPostRender reports whether PostRender is called for this proxy.
func (p *ProxyBase) NeedsPostRender() bool { return p.needsPostRender }

// Name returns the owning node's name at creation.
func (p *ProxyBase) Name() string { return p.name }

// Scene returns the scene the proxy belongs to.
func (p *ProxyBase) Scene() *Scene { return p.scene }

// Info returns the registry record for the proxy.
func (p *ProxyBase) Info() *ProxyInfo { return p.info }

// Destroyed reports whether the reference count reached zero.
func (p *ProxyBase) Destroyed() bool { return p.destroyed }

// PushSnapshot hands snap to node's live proxy: retain on the calling (game)
// goroutine, submit a render task, apply, release on render.
//
// Returns false when there is nothing to push to yet: the node is not in a
// scene, its proxy is not published, or the proxy is already being torn
// down. Callers keep their dirty flag and retry.
func PushSnapshot(node SceneNode, snap Snapshot) bool {
	n := node.Base()
	if n.info == nil {
		return false
	}
	pb := n.proxy.Load()
	if pb == nil || !pb.TryRetain() {
		return false
	}

	err := pb.scene.reg.Submit(dispatch.RoleRender, func() {
		defer pb.Release()
		// Removed between push and apply: nothing left to update.
		if st := pb.info.State(); st == InfoRetired {
			return
		}
		pb.self.ApplySnapshot(snap)
	})
	if err != nil {
		// Only the render role may destroy a proxy.
		if pb.Drop() {
			pb.scene.logger.Warn("proxy abandoned after render queue stopped", "node", pb.name)
		}
		return false
	}
	return true
}
