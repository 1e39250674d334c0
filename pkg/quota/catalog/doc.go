// Package catalog provides the static mapping from model id to quota
// ceilings.
//
// A Catalog is a pure lookup table: Lookup never fails and never mutates.
// Unknown model ids resolve to a documented default entry so that a
// misconfigured model name degrades to conservative limits instead of an
// error on the admission path.
//
// The table can be loaded from a YAML file and swapped atomically at
// runtime; Watcher wires that to filesystem change notifications.
package catalog
