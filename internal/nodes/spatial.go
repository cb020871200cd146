// Package nodes provides the concrete scene nodes: spatial transforms,
// cameras, text labels and dynamic meshes.
package nodes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/proxysync/internal/scene"
)

// TransformParams carries a node's model matrix to its proxy.
type TransformParams struct {
	Model mgl32.Mat4
}

// Kind implements scene.Snapshot.
func (TransformParams) Kind() string { return "transform" }

// Spatial is a node with a position, rotation and scale. Embedded by every
// node that has a place in the world.
type Spatial struct {
	scene.Node

	position mgl32.Vec3
	rotation mgl32.Quat
	scale    mgl32.Vec3

	// Radians per second around Y, applied by Update when ticking.
	spin float32

	transformDirty bool
}

func (s *Spatial) initSpatial(self scene.SceneNode, name string) {
	s.Init(self, name)
	s.rotation = mgl32.QuatIdent()
	s.scale = mgl32.Vec3{1, 1, 1}
	s.transformDirty = true
}

// NewSpatial creates a bare Spatial node.
func NewSpatial(name string) *Spatial {
	s := &Spatial{}
	s.initSpatial(s, name)
	return s
}

// Position returns the local position.
func (s *Spatial) Position() mgl32.Vec3 { return s.position }

// SetPosition moves the node.
func (s *Spatial) SetPosition(p mgl32.Vec3) {
	s.position = p
	s.transformDirty = true
}

// Rotation returns the local rotation.
func (s *Spatial) Rotation() mgl32.Quat { return s.rotation }

// SetRotation rotates the node.
func (s *Spatial) SetRotation(q mgl32.Quat) {
	s.rotation = q.Normalize()
	s.transformDirty = true
}

// SetScale scales the node.
func (s *Spatial) SetScale(v mgl32.Vec3) {
	s.scale = v
	s.transformDirty = true
}

// SetSpin sets the angular velocity around Y in radians per second and
// turns ticking on when non-zero.
func (s *Spatial) SetSpin(radPerSec float32) {
	s.spin = radPerSec
	s.SetTick(radPerSec != 0)
}

// Model returns translate * rotate * scale.
func (s *Spatial) Model() mgl32.Mat4 {
	return mgl32.Translate3D(s.position.X(), s.position.Y(), s.position.Z()).
		Mul4(s.rotation.Mat4()).
		Mul4(mgl32.Scale3D(s.scale.X(), s.scale.Y(), s.scale.Z()))
}

// Update implements scene.SceneNode.
func (s *Spatial) Update(dt float32) {
	if s.spin != 0 {
		s.SetRotation(mgl32.QuatRotate(s.spin*dt, mgl32.Vec3{0, 1, 0}).Mul(s.rotation))
	}
}

// CreateSceneProxy implements scene.SceneNode.
func (s *Spatial) CreateSceneProxy() scene.Proxy {
	p := &SpatialProxy{}
	s.fillSpatialProxy(p)
	return p
}

func (s *Spatial) fillSpatialProxy(p *SpatialProxy) {
	p.model = s.Model()
	s.transformDirty = false
}

// UpdateSceneProxy implements scene.SceneNode: flags, then the transform.
func (s *Spatial) UpdateSceneProxy() {
	s.Node.UpdateSceneProxy()
	if s.transformDirty && scene.PushSnapshot(s.Self(), TransformParams{Model: s.Model()}) {
		s.transformDirty = false
	}
}

// SpatialProxy is the render-side transform.
type SpatialProxy struct {
	scene.ProxyBase
	model mgl32.Mat4
}

// Model returns the last model matrix applied.
func (p *SpatialProxy) Model() mgl32.Mat4 { return p.model }

// ApplySnapshot implements scene.Proxy.
func (p *SpatialProxy) ApplySnapshot(s scene.Snapshot) {
	if t, ok := s.(TransformParams); ok {
		p.model = t.Model
		return
	}
	p.ProxyBase.ApplySnapshot(s)
}
