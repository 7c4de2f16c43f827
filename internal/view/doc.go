// Package view keeps the result of a query over a store collection live.
//
// A LiveView materializes Query.Apply over the collection once at
// construction, without emitting events, then reconciles every local write
// and every change notification into a positional diff delivered to its
// Delegate.
//
// # Reconciliation
//
// Every pass recomputes the visible sequence and diffs identifiers against
// the previous one:
//
//	BeginBatch
//	Removed(positions in the previous sequence)
//	Added(positions in the new sequence)
//	Updated(positions in the new sequence)   local writes of visible ids only
//	EndBatch
//
// Removed and Added positions live in two different index spaces. Consumers
// apply the removals first, then the insertions.
//
// Two notifications bypass the batch: a Removed change for a visible id
// emits a single Removed event, and a Modified change for a visible id emits
// Updated before the pass that follows it.
//
// # Self-write suppression
//
// Append, AppendAll, RemoveAt and Update mark the id in a counted ledger
// before writing. The store's echo of that write consumes one mark and is
// otherwise ignored, since the local pass already reflected it.
//
// # Concurrency
//
// One mutex admits a single pass at a time, whether it was triggered by a
// local write or by the view's notification goroutine. Delegate methods run
// inside the pass, so they must not call mutators, Sync or Close. Read
// accessors (Count, At, Records, IDs) are safe from anywhere, delegates
// included, and already reflect the post-batch state during callbacks.
package view
