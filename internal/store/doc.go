// Package store provides SQLite-backed durable state for one ledger layer.
//
// The store holds:
//   - layer_meta: the layer's fixed role (root or child)
//   - slots: current value of every slot
//   - events: the append-only request log (origin and destination events)
//   - applied: the replay guard, (direction, id) pairs applied here
//
// # Critical Patterns
//
// Replay guard:
//   - PRIMARY KEY(is_exit, request_id) on applied
//   - ApplyDestination inserts with ON CONFLICT DO NOTHING; zero rows
//     affected means the request was already applied and nothing changes
//
// Origin uniqueness:
//   - UNIQUE(is_exit, request_id) WHERE phase = 'origin' on events
//
// Logical time:
//   - Events are ordered by seq, assigned inside the write transaction as
//     MAX(seq)+1. Wall-clock timestamps are never stored.
//
// Atomicity:
//   - Slot write, applied insert and event append share one transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Request ids are uint64 and stored bit-cast to INTEGER.
package store
