// Package history provides an append-only journal of recorded usage.
//
// The journal is a reporting surface, not part of the admission decision:
// nothing on the check/record hot path reads it, and append failures are
// logged by the tracker rather than surfaced to callers.
package history
