package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_AllShippedScenariosParse(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		s, err := LoadScenario(f)
		require.NoError(t, err, f)
		assert.Equal(t, filepath.Base(f), s.Name+".yaml", "file name matches scenario name")
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: s
description: d
nodes: [{name: a, kind: text, text: hi}]
steps: [{add: a}, {frames: 2}]
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", s.Nodes[0].Text)
	assert.Equal(t, 2, s.Steps[1].Frames)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\nsteps: [{frames: 1}]\nassertion: []\n", "failed to parse YAML"},
		{"missing name", "description: d\nsteps: [{frames: 1}]\n", "name is required"},
		{"missing description", "name: x\nsteps: [{frames: 1}]\n", "description is required"},
		{"no steps", "name: x\ndescription: d\n", "steps list is required"},
		{"two actions", "name: x\ndescription: d\nsteps: [{pump: true, frames: 1}]\n", "exactly one action"},
		{"empty step", "name: x\ndescription: d\nsteps: [{}]\n", "exactly one action"},
		{"unknown node", "name: x\ndescription: d\nsteps: [{add: ghost}]\n", "unknown node"},
		{"bad kind", "name: x\ndescription: d\nnodes: [{name: a, kind: light}]\nsteps: [{add: a}]\n", "unknown kind"},
		{"duplicate node", "name: x\ndescription: d\nnodes: [{name: a, kind: group}, {name: a, kind: group}]\nsteps: [{add: a}]\n", "duplicate name"},
		{"set_text on group", "name: x\ndescription: d\nnodes: [{name: a, kind: group}]\nsteps: [{set_text: {node: a, text: t}}]\n", "needs a text node"},
		{"bad assertion", "name: x\ndescription: d\nsteps: [{frames: 1}]\nassertions: [{type: final_state}]\n", "unknown type"},
		{"order too short", "name: x\ndescription: d\nsteps: [{frames: 1}]\nassertions: [{type: trace_order, events: [a]}]\n", "at least two"},
		{"count without event", "name: x\ndescription: d\nsteps: [{frames: 1}]\nassertions: [{type: trace_count, count: 1}]\n", "event is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
