// Package pool manages a fixed set of backend slots, one per addressable
// inference endpoint. It is structured into small files by concern:
//
//   - slot.go: Slot type with its own lock, Acquire/Release and snapshots.
//   - pool.go: Pool construction, first-free acquisition and the bounded
//     coldest-slot fallback.
//   - status.go: read-only Status/SlotStatus projections.
//
// No two slots are ever locked together. Status is therefore an
// eventually-consistent snapshot, not a transaction across the pool.
//
// The pool never blocks. Callers that receive a nil slot apply their own
// backoff (see package dispatch).
package pool
