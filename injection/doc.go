// Package injection replays correlated records against a target store.
//
// A single producer pushes stream.Batch values into a bounded Queue; a Pool
// of Workers pops them, turns each record's absolute expiry into a relative
// TTL, and writes the batch as one pipeline through a target.Conn. A failed
// pipeline is retried on a fresh connection after a constant backoff until
// it succeeds, and counters only move after success, so retries never
// double count. FlushLeftovers writes the keys that never saw an expiry once
// the pool has drained.
package injection
