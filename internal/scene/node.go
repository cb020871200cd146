package scene

import (
	"slices"
	"sync/atomic"
	"weak"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// SceneNode is implemented by every node type. Concrete types embed Node and
// override CreateSceneProxy / UpdateSceneProxy as needed.
//
// All methods are game-role only.
type SceneNode interface {
	// Base returns the embedded Node.
	Base() *Node

	// CreateSceneProxy builds the render-side mirror of the node from its
	// current state. Returning nil means the node does not render.
	CreateSceneProxy() Proxy

	// UpdateSceneProxy pushes any dirty render state to the proxy.
	UpdateSceneProxy()

	// Update advances the node by dt seconds. Called only when Tick is set.
	Update(dt float32)
}

// anchor is the separately allocated identity children point back to.
type anchor struct {
	node SceneNode
}

// Node is the game-side scene graph element.
//
// Ownership: a Node strongly owns its children and holds only a weak
// reference to its parent. The published proxy pointer is written on the
// render role and read on the game role.
type Node struct {
	id   uuid.UUID
	name string
	self SceneNode

	anchor   *anchor
	parent   weak.Pointer[anchor]
	children []SceneNode

	needsRender      bool
	needsPostRender  bool
	tick             bool
	renderStateDirty bool

	// Game-owned: the info from the latest AddNode, nil once removed.
	info  *ProxyInfo
	scene *Scene

	// Render-written, game-read.
	proxy atomic.Pointer[ProxyBase]
}

// Init prepares n for use. self is the outer value embedding n; name is
// NFC-normalized.
func (n *Node) Init(self SceneNode, name string) {
	n.id = uuid.Must(uuid.NewV7())
	n.name = norm.NFC.String(name)
	n.self = self
	n.anchor = &anchor{node: self}
	n.renderStateDirty = true
}

// Base implements SceneNode.
func (n *Node) Base() *Node { return n }

// CreateSceneProxy implements SceneNode with a flags-only proxy.
func (n *Node) CreateSceneProxy() Proxy {
	return &ProxyBase{}
}

// UpdateSceneProxy implements SceneNode. Pushes the render flags when they
// changed; a push that cannot reach a proxy yet is retried next frame.
func (n *Node) UpdateSceneProxy() {
	if !n.renderStateDirty {
		return
	}
	if PushSnapshot(n.self, RenderFlags{NeedsRender: n.needsRender, NeedsPostRender: n.needsPostRender}) {
		n.renderStateDirty = false
	}
}

// Update implements SceneNode. No-op by default.
func (n *Node) Update(dt float32) {}

// ID returns the node id.
func (n *Node) ID() uuid.UUID { return n.id }

// SetID overrides the generated id. Intended for deterministic tests.
func (n *Node) SetID(id uuid.UUID) { n.id = id }

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// SetName renames the node.
func (n *Node) SetName(name string) { n.name = norm.NFC.String(name) }

// Self returns the outer SceneNode.
func (n *Node) Self() SceneNode { return n.self }

// NeedsRender reports whether the node draws in the render pass.
func (n *Node) NeedsRender() bool { return n.needsRender }

// SetNeedsRender toggles drawing; marks render state dirty on change.
func (n *Node) SetNeedsRender(v bool) {
	if n.needsRender != v {
		n.needsRender = v
		n.renderStateDirty = true
	}
}

// NeedsPostRender reports whether the node takes part in post-render.
func (n *Node) NeedsPostRender() bool { return n.needsPostRender }

// SetNeedsPostRender toggles post-render; marks render state dirty on change.
func (n *Node) SetNeedsPostRender(v bool) {
	if n.needsPostRender != v {
		n.needsPostRender = v
		n.renderStateDirty = true
	}
}

// Tick reports whether the game loop calls Update on the node.
func (n *Node) Tick() bool { return n.tick }

// SetTick enables per-frame Update calls.
func (n *Node) SetTick(v bool) { n.tick = v }

// RenderStateDirty reports whether render state awaits a push.
func (n *Node) RenderStateDirty() bool { return n.renderStateDirty }

// MarkRenderStateDirty forces the next UpdateSceneProxy to push.
func (n *Node) MarkRenderStateDirty() { n.renderStateDirty = true }

// Proxy returns the published proxy, or nil if none is live. The value may
// be stale by the time the caller uses it; use PushSnapshot to talk to it.
func (n *Node) Proxy() Proxy {
	if pb := n.proxy.Load(); pb != nil {
		return pb.self
	}
	return nil
}

// InScene reports whether the node was added to a scene and not removed
// since, from the game role's point of view.
func (n *Node) InScene() bool {
	return n.info != nil && n.info.State() != InfoRetired
}

// Scene returns the scene the node was last added to, or nil.
func (n *Node) Scene() *Scene { return n.scene }

// Parent returns the parent node, or nil for a root or a detached node whose
// parent was collected.
func (n *Node) Parent() SceneNode {
	if a := n.parent.Value(); a != nil {
		return a.node
	}
	return nil
}

// Children returns the child list. Callers must not modify it.
func (n *Node) Children() []SceneNode { return n.children }

// AddChild attaches child, detaching it from any previous parent first.
func (n *Node) AddChild(child SceneNode) {
	cb := child.Base()
	if p := cb.Parent(); p != nil {
		p.Base().RemoveChild(child)
	}
	cb.parent = weak.Make(n.anchor)
	n.children = append(n.children, child)
}

// RemoveChild detaches child. No-op when child is not a direct child.
func (n *Node) RemoveChild(child SceneNode) {
	i := slices.Index(n.children, child)
	if i < 0 {
		return
	}
	n.children = slices.Delete(n.children, i, i+1)
	child.Base().parent = weak.Pointer[anchor]{}
}

// Destroy detaches the node from its parent. The node and its subtree drop
// out of the scene on the next recollection.
func (n *Node) Destroy() {
	if p := n.Parent(); p != nil {
		p.Base().RemoveChild(n.self)
	}
}

// Root walks parent links up to the topmost node.
func (n *Node) Root() SceneNode {
	var root SceneNode = n.self
	for p := n.Parent(); p != nil; p = p.Base().Parent() {
		root = p
	}
	return root
}

// Walk visits node and its descendants breadth-first.
func Walk(root SceneNode, fn func(SceneNode)) {
	queue := []SceneNode{root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		fn(n)
		queue = append(queue, n.Base().children...)
	}
}

// Group is a plain node: flags-only proxy, no per-frame work.
type Group struct {
	Node
}

// NewGroup creates a Group.
func NewGroup(name string) *Group {
	g := &Group{}
	g.Init(g, name)
	return g
}
