package harness

import "github.com/roach88/proxysync/internal/journal"

// TraceEvent is one lifecycle event as read back from the journal.
type TraceEvent struct {
	Seq   int64  `json:"seq"`
	Frame uint64 `json:"frame"`
	Kind  string `json:"kind"`
	Node  string `json:"node"`
	Index int    `json:"index"`
	Size  int    `json:"size"`
}

// Label renders the event as "kind:node", the form trace_order uses.
func (e TraceEvent) Label() string {
	return e.Kind + ":" + e.Node
}

func traceFromJournal(entries []journal.Entry) []TraceEvent {
	trace := make([]TraceEvent, len(entries))
	for i, e := range entries {
		trace[i] = TraceEvent{
			Seq:   e.Seq,
			Frame: e.Frame,
			Kind:  string(e.Kind),
			Node:  e.Node,
			Index: e.Index,
			Size:  e.Size,
		}
	}
	return trace
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every lifecycle event in seq order, teardown included.
	Trace []TraceEvent `json:"trace"`

	// Packed lists the packed array by node name after the last step,
	// before teardown.
	Packed []string `json:"packed"`

	// LiveBuffers counts GPU buffers still allocated after teardown.
	LiveBuffers int `json:"live_buffers"`

	// Frames is the number of frames rendered.
	Frames uint64 `json:"frames"`

	// Errors contains assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Packed: []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
