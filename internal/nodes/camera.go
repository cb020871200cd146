package nodes

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/proxysync/internal/scene"
)

// CameraParams is the projection state pushed to a camera proxy.
type CameraParams struct {
	FovyDegrees    float32
	Near, Far      float32
	ViewportWidth  float32
	ViewportHeight float32
}

// Kind implements scene.Snapshot.
func (CameraParams) Kind() string { return "camera" }

// CameraNode publishes the scene view and projection matrices each frame.
type CameraNode struct {
	Spatial

	params            CameraParams
	projectionChanged bool
}

// NewCamera creates a camera with a 60 degree vertical field of view that
// follows the render target size.
func NewCamera(name string) *CameraNode {
	c := &CameraNode{
		params: CameraParams{FovyDegrees: 60, Near: 1, Far: 1000000},
	}
	c.initSpatial(c, name)
	c.SetNeedsRender(true)
	c.projectionChanged = true
	return c
}

// Params returns the projection parameters.
func (c *CameraNode) Params() CameraParams { return c.params }

// SetProjection sets the field of view and clip planes.
func (c *CameraNode) SetProjection(fovyDegrees, near, far float32) {
	c.params.FovyDegrees = fovyDegrees
	c.params.Near = near
	c.params.Far = far
	c.projectionChanged = true
}

// SetZoom sets the vertical field of view.
func (c *CameraNode) SetZoom(fovyDegrees float32) {
	c.params.FovyDegrees = fovyDegrees
	c.projectionChanged = true
}

// SetViewportSize fixes the aspect source. Zero width or height follows the
// render target instead.
func (c *CameraNode) SetViewportSize(width, height float32) {
	c.params.ViewportWidth = width
	c.params.ViewportHeight = height
	c.projectionChanged = true
}

// CreateSceneProxy implements scene.SceneNode.
func (c *CameraNode) CreateSceneProxy() scene.Proxy {
	p := &CameraProxy{}
	c.fillSpatialProxy(&p.SpatialProxy)
	p.apply(c.params)
	c.projectionChanged = false
	return p
}

// UpdateSceneProxy implements scene.SceneNode.
func (c *CameraNode) UpdateSceneProxy() {
	c.Spatial.UpdateSceneProxy()
	if c.projectionChanged && scene.PushSnapshot(c, c.params) {
		c.projectionChanged = false
	}
}

// CameraProxy computes the view and projection on the render role and
// stores them in the scene.
type CameraProxy struct {
	SpatialProxy

	params                   CameraParams
	frameWidth, frameHeight  float32
	view, projection         mgl32.Mat4
	prevView, prevProjection mgl32.Mat4
}

func (p *CameraProxy) apply(params CameraParams) {
	p.params = params
	if params.ViewportWidth > 0 && params.ViewportHeight > 0 {
		p.frameWidth = params.ViewportWidth
		p.frameHeight = params.ViewportHeight
	}
}

// ApplySnapshot implements scene.Proxy.
func (p *CameraProxy) ApplySnapshot(s scene.Snapshot) {
	if c, ok := s.(CameraParams); ok {
		p.apply(c)
		return
	}
	p.SpatialProxy.ApplySnapshot(s)
}

// Render implements scene.Proxy.
func (p *CameraProxy) Render(ctx *scene.RenderContext) {
	if p.params.ViewportWidth <= 0 || p.params.ViewportHeight <= 0 {
		p.frameWidth = ctx.FrameWidth
		p.frameHeight = ctx.FrameHeight
	}
	aspect := float32(1)
	if p.frameWidth > 0 && p.frameHeight > 0 {
		aspect = p.frameWidth / p.frameHeight
	}

	p.prevView = p.view
	p.view = p.model.Inv()
	p.prevProjection = p.projection
	p.projection = mgl32.Perspective(mgl32.DegToRad(p.params.FovyDegrees), aspect, p.params.Near, p.params.Far)

	if s := p.Scene(); s != nil {
		s.SetProjectionMatrix(p.projection)
		s.SetViewMatrix(p.view)
	}
}

// View returns the last computed view matrix.
func (p *CameraProxy) View() mgl32.Mat4 { return p.view }

// Projection returns the last computed projection matrix.
func (p *CameraProxy) Projection() mgl32.Mat4 { return p.projection }

// FrameSize returns the size used for the aspect ratio.
func (p *CameraProxy) FrameSize() (w, h float32) { return p.frameWidth, p.frameHeight }
