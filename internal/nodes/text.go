package nodes

import (
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/proxysync/internal/backend"
	"github.com/roach88/proxysync/internal/scene"
)

// TextParams is the label state pushed to a text proxy.
type TextParams struct {
	Text  string
	Color mgl32.Vec4
}

// Kind implements scene.Snapshot.
func (TextParams) Kind() string { return "text" }

// TextNode draws a label.
type TextNode struct {
	Spatial

	params    TextParams
	textDirty bool
}

// NewText creates a visible label with white text.
func NewText(name, text string) *TextNode {
	t := &TextNode{
		params: TextParams{Text: norm.NFC.String(text), Color: mgl32.Vec4{1, 1, 1, 1}},
	}
	t.initSpatial(t, name)
	t.SetNeedsRender(true)
	return t
}

// Text returns the label text.
func (t *TextNode) Text() string { return t.params.Text }

// SetText replaces the label, NFC-normalized.
func (t *TextNode) SetText(s string) {
	s = norm.NFC.String(s)
	if s != t.params.Text {
		t.params.Text = s
		t.textDirty = true
	}
}

// SetColor sets the label color.
func (t *TextNode) SetColor(c mgl32.Vec4) {
	if c != t.params.Color {
		t.params.Color = c
		t.textDirty = true
	}
}

// CreateSceneProxy implements scene.SceneNode.
func (t *TextNode) CreateSceneProxy() scene.Proxy {
	p := &TextProxy{params: t.params}
	t.fillSpatialProxy(&p.SpatialProxy)
	t.textDirty = false
	return p
}

// UpdateSceneProxy implements scene.SceneNode.
func (t *TextNode) UpdateSceneProxy() {
	t.Spatial.UpdateSceneProxy()
	if t.textDirty && scene.PushSnapshot(t, t.params) {
		t.textDirty = false
	}
}

// TextProxy issues one draw per frame for its glyph run.
type TextProxy struct {
	SpatialProxy
	params TextParams
}

// Params returns the label state last applied.
func (p *TextProxy) Params() TextParams { return p.params }

// ApplySnapshot implements scene.Proxy.
func (p *TextProxy) ApplySnapshot(s scene.Snapshot) {
	if t, ok := s.(TextParams); ok {
		p.params = t
		return
	}
	p.SpatialProxy.ApplySnapshot(s)
}

// Render implements scene.Proxy.
func (p *TextProxy) Render(ctx *scene.RenderContext) {
	if ctx.Device == nil {
		return
	}
	ctx.Device.Draw(backend.DrawCall{
		Label: p.params.Text,
		Count: utf8.RuneCountInString(p.params.Text),
	})
}
