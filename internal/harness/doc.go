// Package harness runs scripted scene scenarios and checks the lifecycle
// trace they produce.
//
// A scenario declares named nodes, then drives them through game-side
// calls (add, remove, push), explicit render-queue pumps and full frames.
// Every lifecycle event the scene emits is recorded in an in-memory
// journal and read back as the trace.
//
// # Scenario Format
//
//	name: remove_before_fold
//	description: "What this scenario validates"
//	frames_in_flight: 2
//	nodes:
//	  - {name: n, kind: text, text: hello}
//	steps:
//	  - add: n
//	  - pump: true
//	  - remove: n
//	  - frames: 1
//	assertions:
//	  - type: trace_order
//	    events: ["added:n", "removed_pending:n"]
//	  - type: packed
//	    nodes: []
//
// Node kinds are group, spatial, text, mesh and camera. Each step performs
// exactly one of add, remove, push, set_text, fail_creates, pump, frames or
// clear.
//
// # Assertion Types
//
//   - trace_contains: an event of a kind (for a node, if set) was recorded
//   - trace_order: "kind:node" labels appear in order, gaps allowed
//   - trace_count: an event kind occurs exactly N times
//   - packed: the packed array after the last step, by node name
//   - live_buffers: GPU buffers still allocated after teardown
//
// # Deterministic Testing
//
// The calling goroutine holds both the Game and Render roles and the render
// queue is inline, so tasks run only when a step pumps them. Node ids come
// from testutil.SequentialIDs and timestamps from testutil.ManualClock.
// Each run uses a fresh in-memory journal, so seq numbers start at 1.
//
// This gives identical traces across runs for golden file comparison.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/swap_with_last.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
