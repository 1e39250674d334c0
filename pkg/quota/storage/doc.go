// Package storage provides persistence backends for the quota state record.
//
// Two backends are available:
//
//   - MemoryBackend: fast, no persistence (the default)
//   - SQLiteBackend: durable single-file storage for state that must
//     survive process restarts
//
// Both store the single process-wide record; there is no keyspace.
// Reading a missing or corrupt record never crashes the caller: missing
// yields (nil, nil) and corrupt yields an error wrapping ErrCorruptState,
// and the tracker reinitializes in either case.
package storage
