// Package repositories implements SQLite persistence for run history.
//
// History is written for audit only. Nothing here is consulted to skip or short-circuit validation in
// a later run, and quota usage is never persisted.
//
// Key Implementations:
//   - [RunRepository] : one row per verification run with status, stop reason and counts
//   - [OutcomeRepository] : the terminal outcome of every address in a run
//
// Sequence numbers provide stable, human-readable ordering (e.g. run #42) independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
