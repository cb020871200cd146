package cli

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roach88/proxysync/internal/behavior"
	"github.com/roach88/proxysync/internal/config"
	"github.com/roach88/proxysync/internal/game"
	"github.com/roach88/proxysync/internal/nodes"
	"github.com/roach88/proxysync/internal/scene"
)

const (
	meshPulseFrames = 30
	toggleFrames    = 120
)

var triangle = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}

// demoScene is the built-in scene the run command drives: a camera,
// spinning transforms, pulsing meshes and frame-counter labels.
type demoScene struct {
	root     *scene.Group
	camera   *nodes.CameraNode
	spinners []*nodes.Spatial
	meshes   []*nodes.MeshNode
	labels   []*nodes.TextNode
}

func buildDemo(d config.Demo) *demoScene {
	s := &demoScene{root: scene.NewGroup("root")}

	s.camera = nodes.NewCamera("camera")
	s.camera.SetPosition(mgl32.Vec3{0, 2, 10})
	s.root.AddChild(s.camera)

	for i := range d.Spinners {
		n := nodes.NewSpatial(fmt.Sprintf("spinner-%d", i))
		n.SetPosition(mgl32.Vec3{float32(i) * 2, 0, 0})
		n.SetSpin(0.5 + 0.1*float32(i))
		n.SetNeedsRender(true)
		s.root.AddChild(n)
		s.spinners = append(s.spinners, n)
	}
	for i := range d.Meshes {
		n := nodes.NewMesh(fmt.Sprintf("mesh-%d", i), triangle)
		n.SetPosition(mgl32.Vec3{0, float32(i) * 2, -5})
		s.root.AddChild(n)
		s.meshes = append(s.meshes, n)
	}
	for i := range d.Labels {
		n := nodes.NewText(fmt.Sprintf("label-%d", i), "frame 0")
		n.SetPosition(mgl32.Vec3{-4, float32(i), 0})
		s.root.AddChild(n)
		s.labels = append(s.labels, n)
	}
	return s
}

// install registers the demo behaviors. Game role only.
func (s *demoScene) install(g *game.Game) {
	b := g.Behaviors()
	if len(s.labels) > 0 {
		b.Add("frame-counter", behavior.Funcs{OnUpdate: func(float32) {
			text := fmt.Sprintf("frame %d", g.Frame())
			for _, l := range s.labels {
				l.SetText(text)
			}
		}}, 0)
	}
	if len(s.meshes) > 0 {
		b.Add("mesh-pulse", behavior.Funcs{OnUpdate: func(float32) {
			if g.Frame()%meshPulseFrames != 0 {
				return
			}
			scale := 1 + 0.25*float32(math.Sin(float64(g.Frame())/meshPulseFrames))
			for _, m := range s.meshes {
				m.SetVertices(scaled(triangle, scale))
			}
		}}, 1)
	}
	if len(s.spinners) > 1 {
		last := s.spinners[len(s.spinners)-1]
		b.Add("spinner-toggle", behavior.Funcs{OnUpdate: func(float32) {
			if g.Frame()%toggleFrames != 0 {
				return
			}
			if last.Parent() != nil {
				s.root.RemoveChild(last)
			} else {
				s.root.AddChild(last)
			}
			g.Recollect()
		}}, 2)
	}
}

func scaled(v []float32, k float32) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * k
	}
	return out
}
