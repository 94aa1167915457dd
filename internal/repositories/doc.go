// Package repositories implements SQLite persistence for the engine's history.
//
// [SyncRunRepository] stores one row per fingerprint sweep in sync_runs and the per-owner
// outcomes in sync_outcomes. Runs are soft deleted via deleted_at and excluded from queries by
// default.
//
// Sequence numbers provide stable, human-readable ordering (sweep #42) independent of UUIDs and
// creation timestamps. The [NextSequence] function atomically increments per-table sequence
// counters in dedicated sequence tables.
package repositories
