// Package history persists a ledger of pipeline runs and their worker
// outcomes in SQLite.
//
// Each run is keyed by the uuid the pipeline attaches to its logs, so a row
// in the ledger can be matched against vidscale.log and the per-worker
// part{i}.log files. The database lives next to the logs and is treated as
// an audit trail rather than state the pipeline depends on: a run succeeds
// or fails independently of whether its history row could be written.
//
// Schema changes bump schemaVersion in schema.go; users delete history.db to
// adopt the new schema.
package history
