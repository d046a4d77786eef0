// Package store provides SQLite-backed durable storage for modhost runs.
//
// The store is an append-mostly log with three tables:
//   - runs: one row per run with its entry, outcome, and settled value
//   - modules: the final state of every module of a run
//   - events: the run's trace, one row per recorded event
//
// # Ordering
//
// All ordering uses seq INTEGER (logical clock), never timestamps. Every
// query that returns several rows orders by seq ASC, id ASC, so reads are
// identical across processes and replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values are stored as canonical JSON (value.MarshalCanonical).
package store
