package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallDemo = `
max_frame_rate: 0
demo:
  spinners: 2
  meshes: 1
  labels: 1
`

func TestRun_InlineWithJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "proxysync.yaml", smallDemo)
	db := filepath.Join(dir, "run.db")

	out, err := execute(t, "run", "--config", cfg, "--journal", db, "--inline", "--frames", "5", "--format", "json")
	require.NoError(t, err)

	status, summary := decodeData[RunSummary](t, out)
	assert.Equal(t, "ok", status)
	assert.Equal(t, uint64(5), summary.Frames)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, summary.BuffersCreated, summary.BuffersFreed)
	assert.Equal(t, 0, summary.LiveBuffers)

	out, err = execute(t, "trace", "--journal", db, "--format", "json")
	require.NoError(t, err)
	_, trace := decodeData[TraceResult](t, out)

	assert.Equal(t, summary.RunID, trace.RunID)
	assert.Equal(t, "demo", trace.Label)
	assert.True(t, trace.Stats.IsComplete)
	assert.Equal(t, 5, trace.Stats.FrameCount)
	// root, camera, two spinners, one mesh, one label
	assert.Equal(t, 6, trace.Stats.ByKind["packed"])
	assert.Equal(t, 6, trace.Stats.ByKind["cleared"])
	assert.Equal(t, 6, trace.Stats.ByKind["destroyed"])
}

func TestRun_Threaded(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "proxysync.yaml", smallDemo)

	out, err := execute(t, "run", "--config", cfg, "--frames", "150", "--format", "json")
	require.NoError(t, err)

	_, summary := decodeData[RunSummary](t, out)
	assert.Equal(t, uint64(150), summary.Frames)
	assert.Empty(t, summary.RunID, "no journal, no run id")
	assert.Positive(t, summary.BuffersCreated)
	assert.Equal(t, summary.BuffersCreated, summary.BuffersFreed)
}

func TestRun_TextOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "proxysync.yaml", smallDemo)

	out, err := execute(t, "run", "-c", cfg, "--inline", "--frames", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Ran 2 frames")
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "proxysync.yaml", "frames_in_flight: 9\n")

	_, err := execute(t, "run", "--config", cfg, "--frames", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRun_MissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_RejectsArgs(t *testing.T) {
	_, err := execute(t, "run", "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
