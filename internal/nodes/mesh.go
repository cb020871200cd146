package nodes

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/reclaim"
	"github.com/roach88/proxysync/internal/scene"
)

// floatsPerVertex is x, y, z.
const floatsPerVertex = 3

// MeshParams carries a copy of the vertex stream to a mesh proxy.
type MeshParams struct {
	Vertices []float32
}

// Kind implements scene.Snapshot.
func (MeshParams) Kind() string { return "mesh" }

// MeshNode draws a vertex stream that the game may rewrite every frame.
type MeshNode struct {
	Spatial

	vertices  []float32
	meshDirty bool
}

// NewMesh creates a visible mesh with a copy of vertices.
func NewMesh(name string, vertices []float32) *MeshNode {
	m := &MeshNode{vertices: slices.Clone(vertices)}
	m.initSpatial(m, name)
	m.SetNeedsRender(true)
	return m
}

// Vertices returns the game-side vertex stream. Callers must not modify it.
func (m *MeshNode) Vertices() []float32 { return m.vertices }

// SetVertices replaces the vertex stream.
func (m *MeshNode) SetVertices(v []float32) {
	m.vertices = slices.Clone(v)
	m.meshDirty = true
}

// CreateSceneProxy implements scene.SceneNode.
func (m *MeshNode) CreateSceneProxy() scene.Proxy {
	p := &MeshProxy{pending: slices.Clone(m.vertices), dirty: true}
	m.fillSpatialProxy(&p.SpatialProxy)
	m.meshDirty = false
	return p
}

// UpdateSceneProxy implements scene.SceneNode.
func (m *MeshNode) UpdateSceneProxy() {
	m.Spatial.UpdateSceneProxy()
	if m.meshDirty && scene.PushSnapshot(m, MeshParams{Vertices: slices.Clone(m.vertices)}) {
		m.meshDirty = false
	}
}

// MeshProxy owns a DynamicBuffer. Vertex uploads happen on the render role
// at draw time, so each frame writes a buffer no in-flight frame reads.
type MeshProxy struct {
	SpatialProxy

	buf     *reclaim.DynamicBuffer
	pending []float32
	dirty   bool
	count   int
}

// CreateRenderResources implements scene.Proxy.
func (p *MeshProxy) CreateRenderResources() bool {
	gpu := p.Scene().GPU()
	if gpu.Device == nil || gpu.Buffers == nil {
		return false
	}
	p.buf = reclaim.NewDynamicBuffer(gpu.Device, gpu.Buffers)
	if err := p.upload(); err != nil {
		p.Scene().Logger().Warn("mesh upload failed", "node", p.Name(), "error", err)
		p.buf = nil
		return false
	}
	return true
}

// DestroyRenderResources implements scene.Proxy.
func (p *MeshProxy) DestroyRenderResources() {
	if p.buf != nil {
		p.buf.Release()
		p.buf = nil
	}
}

// ApplySnapshot implements scene.Proxy.
func (p *MeshProxy) ApplySnapshot(s scene.Snapshot) {
	if m, ok := s.(MeshParams); ok {
		p.pending = m.Vertices
		p.dirty = true
		return
	}
	p.SpatialProxy.ApplySnapshot(s)
}

func (p *MeshProxy) upload() error {
	if !p.dirty {
		return nil
	}
	data := make([]byte, 4*len(p.pending))
	for i, f := range p.pending {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
	}
	if err := p.buf.Write(data); err != nil {
		return err
	}
	p.count = len(p.pending) / floatsPerVertex
	p.pending = nil
	p.dirty = false
	return nil
}

// Render implements scene.Proxy.
func (p *MeshProxy) Render(ctx *scene.RenderContext) {
	if p.buf == nil {
		return
	}
	if err := p.upload(); err != nil {
		p.Scene().Logger().Warn("mesh upload failed", "node", p.Name(), "error", err)
		return
	}
	cur, ok := p.buf.Current()
	if !ok {
		return
	}
	ctx.Device.Draw(backend.DrawCall{Label: p.Name(), Buffer: cur, Count: p.count})
}

// VertexCount returns the number of vertices last uploaded.
func (p *MeshProxy) VertexCount() int { return p.count }

// Buffer returns the backing buffer of the last upload.
func (p *MeshProxy) Buffer() (backend.Buffer, bool) {
	if p.buf == nil {
		return backend.Buffer{}, false
	}
	return p.buf.Current()
}
