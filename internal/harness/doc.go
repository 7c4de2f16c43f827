// Package harness runs live view scenarios described in YAML.
//
// # Scenario Format
//
//	name: window_slide
//	description: "Appending past the window pushes the last row out"
//	query: |
//	  collection: "items"
//	  order: [{field: "n"}]
//	  window: {start: 0, length: 2}
//	seed:
//	  - {id: "a", fields: {n: 1}}
//	steps:
//	  - append: {id: "b", fields: {n: 0}}
//	    expect:
//	      events: [begin, "remove <1,0>", "add <0,0>", end]
//	      visible: [b, a]
//	  - remove_at: 5
//	    expect:
//	      error: OUT_OF_RANGE
//	assertions:
//	  - type: event_count
//	    event: add
//	    count: 1
//
// The query is CUE source for one query body (see package compiler).
// Instead of inline source a scenario may name query_file and query_name.
//
// # Steps
//
// Exactly one operation per step:
//
//   - append, append_all, remove_at, update: go through the LiveView, so
//     the view's own echoes are suppressed
//   - external_write, external_delete: write the store directly, as another
//     writer would
//
// A step may set fail_store to make the backend reject writes for that step.
//
// # Determinism
//
// Every scenario runs on a fresh memstore. After each step the harness
// waits for the view to reconcile every change already published, so the
// events recorded for a step are exactly the ones it caused. Traces are
// rendered as canonical JSON for golden comparison.
package harness
