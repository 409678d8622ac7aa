// Package storage persists the set of revivable receiver identities.
//
// The set must outlive the process: it is read on the next cold start to
// re-instantiate receivers before any message is dispatched. Every driver
// stores one logical entry (by default "receivers.static") and writes are
// always a full replacement of the previous snapshot.
//
// Drivers:
//   - "memory":   in-process only (tests, ephemeral runs)
//   - "file":     JSON snapshot with atomic rename
//   - "sqlite":   SQLite database file (modernc.org/sqlite, no cgo)
//   - "bolt":     bbolt key/value file
//   - "redis":    a Redis SET
//   - "postgres": a Postgres table (pgx)
//
// A Deferred store reports ErrUnavailable until a backend is attached, which
// is how callers model "the durable store is not reachable yet".
package storage
