package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/proxysync/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	RunID   string
	Kind    string // optional - filter to one event kind
	Node    string // optional - filter to one node
	Frames  bool   // include per-frame rows
}

// TraceEvent is one lifecycle event in the timeline.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Frame uint64 `json:"frame"`
	Kind  string `json:"kind"`
	Node  string `json:"node"`
	Index int    `json:"index"`
	Size  int    `json:"size"`
}

// TraceFrame is one recorded frame row.
type TraceFrame struct {
	Frame     uint64  `json:"frame"`
	DeltaTime float32 `json:"delta_time"`
	Added     int     `json:"added"`
	Removed   int     `json:"removed"`
	Nodes     int     `json:"nodes"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	RunID      string       `json:"run_id"`
	Label      string       `json:"label"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Timeline   []TraceEvent `json:"timeline"`
	Frames     []TraceFrame `json:"frames,omitempty"`
	Stats      TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	FrameCount  int            `json:"frame_count"`
	IsComplete  bool           `json:"is_complete"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the lifecycle journal of a run",
		Long: `Show the recorded proxy lifecycle events of a run.

Reads a journal written by "run --journal". Without --run the most recently
started run is shown.

The output includes:
- Timeline: lifecycle events in the order they happened
- Frames: per-frame node counts (with --frames)
- Stats: event counts by kind

Examples:
  proxysync trace --journal ./run.db
  proxysync trace --journal ./run.db --node mesh-0
  proxysync trace --journal ./run.db --kind create_failed --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (defaults to the latest run)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().StringVar(&opts.Node, "node", "", "filter to one node name")
	cmd.Flags().BoolVar(&opts.Frames, "frames", false, "include per-frame rows")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := os.Stat(opts.Journal); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	run, err := findRun(ctx, j, opts.RunID)
	if err != nil {
		return err
	}

	entries, err := j.Events(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		RunID:      run.ID,
		Label:      run.Label,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Timeline:   buildTimeline(entries, opts.Kind, opts.Node),
	}

	frames, err := j.Frames(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read frames", err)
	}
	if opts.Frames {
		result.Frames = make([]TraceFrame, len(frames))
		for i, fi := range frames {
			result.Frames[i] = TraceFrame{
				Frame:     fi.Frame,
				DeltaTime: fi.DeltaTime,
				Added:     fi.Added,
				Removed:   fi.Removed,
				Nodes:     fi.Nodes,
			}
		}
	}

	result.Stats = TraceStats{
		TotalEvents: len(result.Timeline),
		ByKind:      make(map[string]int),
		FrameCount:  len(frames),
		IsComplete:  run.FinishedAt != nil,
	}
	for _, ev := range result.Timeline {
		result.Stats.ByKind[ev.Kind]++
	}

	if opts.Format == "json" {
		return encodeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	return outputTraceText(cmd.OutOrStdout(), result)
}

// findRun resolves runID, or the latest run when it is empty.
func findRun(ctx context.Context, j *journal.Journal, runID string) (journal.Run, error) {
	runs, err := j.Runs(ctx)
	if err != nil {
		return journal.Run{}, WrapExitError(ExitCommandError, "failed to read runs", err)
	}
	if len(runs) == 0 {
		return journal.Run{}, NewExitError(ExitCommandError, "journal has no runs")
	}
	if runID == "" {
		return runs[len(runs)-1], nil
	}
	i := slices.IndexFunc(runs, func(r journal.Run) bool { return r.ID == runID })
	if i < 0 {
		return journal.Run{}, NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	return runs[i], nil
}

// buildTimeline converts journal entries to timeline events, keeping only
// those matching kind and node when set.
func buildTimeline(entries []journal.Entry, kind, node string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, e := range entries {
		if kind != "" && string(e.Kind) != kind {
			continue
		}
		if node != "" && e.Node != node {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:   e.Seq,
			Frame: e.Frame,
			Kind:  string(e.Kind),
			Node:  e.Node,
			Index: e.Index,
			Size:  e.Size,
		})
	}
	return timeline
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult) error {
	fmt.Fprintf(w, "Trace for Run: %s (%s)\n", result.RunID, result.Label)
	fmt.Fprintf(w, "Status: %s\n", completeStatus(result.Stats.IsComplete))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] frame %d %-15s %s%s\n", ev.Seq, ev.Frame, ev.Kind, ev.Node, formatSlot(ev.Index, ev.Size))
	}
	fmt.Fprintln(w)

	if len(result.Frames) > 0 {
		fmt.Fprintln(w, "=== Frames ===")
		for _, f := range result.Frames {
			fmt.Fprintf(w, "  %6d dt=%.4f nodes=%d +%d -%d\n", f.Frame, f.DeltaTime, f.Nodes, f.Added, f.Removed)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Frames:       %d\n", result.Stats.FrameCount)
	kinds := make([]string, 0, len(result.Stats.ByKind))
	for k := range result.Stats.ByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-15s %d\n", k+":", result.Stats.ByKind[k])
	}
	return nil
}

// formatSlot renders the packed index and size when known.
func formatSlot(index, size int) string {
	switch {
	case index >= 0:
		return fmt.Sprintf(" index=%d size=%d", index, size)
	case size >= 0:
		return fmt.Sprintf(" size=%d", size)
	default:
		return ""
	}
}

// completeStatus returns a human-readable completion status.
func completeStatus(isComplete bool) string {
	if isComplete {
		return "Complete"
	}
	return "Incomplete (run still open or interrupted)"
}
