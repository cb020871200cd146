package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario drives a scene through an explicit sequence of game-side calls,
// render-task pumps and frames, then checks the resulting lifecycle trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// FramesInFlight sets the buffer reclaimer depth. Defaults to 2.
	FramesInFlight int `yaml:"frames_in_flight,omitempty"`

	// Nodes declares the nodes steps refer to by name.
	Nodes []NodeDef `yaml:"nodes"`

	// Steps run in order. Each step performs exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final scene.
	// Supported types: trace_contains, trace_order, trace_count, packed,
	// live_buffers
	Assertions []Assertion `yaml:"assertions"`
}

// Node kinds.
const (
	KindGroup   = "group"
	KindSpatial = "spatial"
	KindText    = "text"
	KindMesh    = "mesh"
	KindCamera  = "camera"
)

// NodeDef declares one node.
type NodeDef struct {
	Name string `yaml:"name"`

	// Kind is one of group, spatial, text, mesh, camera.
	Kind string `yaml:"kind"`

	// Text is the label of a text node.
	Text string `yaml:"text,omitempty"`

	// Vertices is the xyz stream of a mesh node.
	Vertices []float32 `yaml:"vertices,omitempty"`
}

// Step is one scenario action.
type Step struct {
	// Add calls Scene.AddNode on the game side.
	Add string `yaml:"add,omitempty"`

	// Remove calls Scene.RemoveNode on the game side.
	Remove string `yaml:"remove,omitempty"`

	// Push calls UpdateSceneProxy on the node.
	Push string `yaml:"push,omitempty"`

	// SetText changes a text node's label.
	SetText *SetText `yaml:"set_text,omitempty"`

	// FailCreates makes the next n buffer creations fail.
	FailCreates int `yaml:"fail_creates,omitempty"`

	// Pump runs queued render tasks without folding or rendering.
	Pump bool `yaml:"pump,omitempty"`

	// Frames pumps and renders this many frames.
	Frames int `yaml:"frames,omitempty"`

	// Clear calls Scene.ClearNodes.
	Clear bool `yaml:"clear,omitempty"`
}

// SetText is the argument of a set_text step.
type SetText struct {
	Node string `yaml:"node"`
	Text string `yaml:"text"`
}

// actions counts the actions set on the step.
func (s Step) actions() int {
	n := 0
	for _, set := range []bool{
		s.Add != "",
		s.Remove != "",
		s.Push != "",
		s.SetText != nil,
		s.FailCreates > 0,
		s.Pump,
		s.Frames > 0,
		s.Clear,
	} {
		if set {
			n++
		}
	}
	return n
}

// Assertion validates the trace or the final scene.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event kind for Node exists
	// - "trace_order": Events ("kind:node") appear in this order
	// - "trace_count": events of Event kind (for Node, if set) occur Count times
	// - "packed": the packed array holds Nodes in this order
	// - "live_buffers": Count buffers remain after teardown
	Type string `yaml:"type"`

	Event  string   `yaml:"event,omitempty"`
	Node   string   `yaml:"node,omitempty"`
	Count  int      `yaml:"count,omitempty"`
	Events []string `yaml:"events,omitempty"`
	Nodes  []string `yaml:"nodes,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertPacked        = "packed"
	AssertLiveBuffers   = "live_buffers"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML. Unknown fields are rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// step and assertion refers to declared nodes.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.FramesInFlight < 0 {
		return fmt.Errorf("frames_in_flight must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	kinds := make(map[string]string, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.Name == "" {
			return fmt.Errorf("nodes[%d]: name is required", i)
		}
		if _, dup := kinds[n.Name]; dup {
			return fmt.Errorf("nodes[%d]: duplicate name %q", i, n.Name)
		}
		switch n.Kind {
		case KindGroup, KindSpatial, KindText, KindMesh, KindCamera:
		default:
			return fmt.Errorf("nodes[%d]: unknown kind %q", i, n.Kind)
		}
		kinds[n.Name] = n.Kind
	}

	known := func(name string) bool {
		_, ok := kinds[name]
		return ok
	}
	for i, st := range s.Steps {
		if st.actions() != 1 {
			return fmt.Errorf("steps[%d]: exactly one action required", i)
		}
		for _, ref := range []string{st.Add, st.Remove, st.Push} {
			if ref != "" && !known(ref) {
				return fmt.Errorf("steps[%d]: unknown node %q", i, ref)
			}
		}
		if st.SetText != nil {
			if kinds[st.SetText.Node] != KindText {
				return fmt.Errorf("steps[%d]: set_text needs a text node, got %q", i, st.SetText.Node)
			}
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertTraceContains, AssertTraceCount:
			if a.Event == "" {
				return fmt.Errorf("assertions[%d]: event is required", i)
			}
		case AssertTraceOrder:
			if len(a.Events) < 2 {
				return fmt.Errorf("assertions[%d]: trace_order needs at least two events", i)
			}
		case AssertPacked, AssertLiveBuffers:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}
