// Package reconcile computes and applies minimal deltas between a mirrored
// collection and a freshly fetched snapshot. It is structured into small files
// by concern:
//
//   - collection.go: Collection, the keyed last-known-good mirror of one set.
//   - delta.go: Delta and the Index helper that keys a snapshot.
//   - reconcile.go: Reconcile (pure diff) and Apply (mutating merge).
//   - errors.go: error types and helpers (IsDuplicateKey).
//
// Nothing in this package is safe for concurrent use. Callers serialize access
// per collection; see package mirror.
package reconcile
