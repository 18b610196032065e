// Package store provides SQLite-backed persistence for generated cohorts.
//
// The engine itself never touches storage: it depends only on the
// StateManager contract (save / load / list), and this package is one
// implementation of it. Records are grouped by entity type and keyed by id
// — the store makes no schema assumptions beyond that.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Record bodies are stored as JSON TEXT. encoding/json sorts map keys, so
// stored bodies are byte-stable across runs of the same cohort.
package store
