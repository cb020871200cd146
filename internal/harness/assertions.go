package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes the full trace to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] frame=%d %s index=%d size=%d\n", ev.Seq, ev.Frame, ev.Label(), ev.Index, ev.Size)
		}
	}
	return buf.String()
}

func matches(ev TraceEvent, kind, node string) bool {
	return ev.Kind == kind && (node == "" || ev.Node == node)
}

// assertTraceContains checks that at least one event of the given kind
// (and node, if set) was recorded.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matches(ev, a.Event, a.Node) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s for node %q", a.Event, a.Node),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that each "kind:node" label occurs after the one
// before it. Intervening events are allowed; each label matches its first
// occurrence after the previous match.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	pos := 0
	for _, want := range a.Events {
		found := -1
		for i := pos; i < len(trace); i++ {
			if trace[i].Label() == want {
				found = i
				break
			}
		}
		if found < 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual:   fmt.Sprintf("%s not found after position %d", want, pos),
				Trace:    trace,
			}
		}
		pos = found + 1
	}
	return nil
}

// assertTraceCount checks the number of events of a kind (and node).
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matches(ev, a.Event, a.Node) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s for node %q exactly %d times", a.Event, a.Node, a.Count),
			Actual:   fmt.Sprintf("%d times", count),
			Trace:    trace,
		}
	}
	return nil
}

func assertPacked(result *Result, a Assertion) error {
	want := a.Nodes
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(result.Packed, want) {
		return &AssertionError{
			Type:     AssertPacked,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", result.Packed),
		}
	}
	return nil
}

func assertLiveBuffers(result *Result, a Assertion) error {
	if result.LiveBuffers != a.Count {
		return &AssertionError{
			Type:     AssertLiveBuffers,
			Expected: fmt.Sprintf("%d live buffers", a.Count),
			Actual:   fmt.Sprintf("%d live buffers", result.LiveBuffers),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertPacked:
			err = assertPacked(result, a)
		case AssertLiveBuffers:
			err = assertLiveBuffers(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
