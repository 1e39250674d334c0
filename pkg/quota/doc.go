// Package quota implements windowed admission control for metered
// upstream APIs: per-model token and request ceilings over a rolling
// minute window and a local-midnight day window.
//
// The package is organized around three cooperating types:
//
//   - Tracker owns the counters and windows, applies the reset rules,
//     records consumption, persists state across restarts, and
//     broadcasts snapshots to subscribers.
//   - AdmissionController gates callers: AwaitCapacity blocks while the
//     quota is exhausted and returns once a window boundary has passed.
//   - Scheduler reconciles the tracker on a fixed cadence so rollovers
//     are detected even when no caller is active.
//
// Windows are anchored to activity, not the wall-clock grid: the minute
// window ends sixty seconds after its last rollover, and the day window
// ends at the next local midnight. Both roll over independently.
//
// Ceilings come from a catalog (see the catalog subpackage); unknown
// models fall back to a conservative default entry, so admission checks
// never fail on an unrecognized model id.
package quota
