// Package state defines the persisted quota consumption record and its
// window-reset rules.
//
// # Windows
//
// Consumption is tracked over two windows with different anchoring:
//
//   - Minute: rolls over 60 seconds after its last rollover. The window
//     never drifts onto a fixed grid; each rollover re-anchors it at the
//     moment the rollover was detected.
//   - Day: rolls over at the next local midnight (a wall-clock boundary).
//
// # Lazy reconciliation
//
// Rollover is detected lazily by Reconcile, not by a timer that must never
// miss a tick. A process that sleeps through any number of rollovers ends
// up with correct counters on the next Reconcile call, which makes the
// record safe to reload after a restart of arbitrary length.
package state
