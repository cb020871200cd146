package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cancelledAdd = `
name: cancelled_add
description: a node removed before its add task runs never creates resources
nodes:
  - {name: n, kind: text, text: hello}
steps:
  - add: n
  - remove: n
  - frames: 1
assertions:
  - type: trace_count
    event: add_cancelled
    count: 1
`

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := executeSub(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_NonExistentDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommand_EmptyDirJSON(t *testing.T) {
	out, err := execute(t, "test", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	status, result := decodeData[TestResult](t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, result.Scenarios)
}

func TestTestCommand_RepoScenariosPass(t *testing.T) {
	out, err := execute(t, "test", repoScenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ swap_with_last")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", repoScenarios, "--filter", "remove_*", "--format", "json")
	require.NoError(t, err)

	_, result := decodeData[TestResult](t, out)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, "remove_before_fold", result.Scenarios[0].Name)
	assert.True(t, result.Scenarios[0].Pass)
}

func TestTestCommand_InvalidFilter(t *testing.T) {
	_, err := execute(t, "test", repoScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cancelled_add.yaml", cancelledAdd)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ cancelled_add")

	golden := filepath.Join(dir, "golden", "cancelled_add.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind": "add_cancelled"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err, "golden written by --update matches")

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0o644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", `
name: wrong
description: expects a packed node that was never added
nodes:
  - {name: n, kind: group}
steps:
  - frames: 1
assertions:
  - type: packed
    nodes: [n]
`)
	writeFile(t, dir, "broken.yaml", brokenScenario)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	status, result := decodeData[TestResult](t, out)
	assert.Equal(t, "error", status)
	assert.Equal(t, 2, result.Failed)
	for _, sr := range result.Scenarios {
		assert.False(t, sr.Pass)
		assert.NotEmpty(t, sr.Errors)
	}
}

func TestFindScenarioFiles_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "x")
	writeFile(t, dir, "b.yml", "x")
	writeFile(t, dir, "golden/a.yaml", "x")
	writeFile(t, dir, "c.json", "x")

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)
}
