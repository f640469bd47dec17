// Package store provides SQLite-backed durable storage for keyframe streams.
//
// A recording session is an append-only log of keyframes:
//   - Sessions: one row per recording, with the decimal precision used to
//     encode its keyframes
//   - Keyframes: the encoded keyframe body and its content hash, keyed by
//     (session_id, seq)
//
// # Ordering
//
// All ordering uses the logical seq column, never timestamps. Keyframe seq
// values within a session are contiguous and start at 1, so reading a
// session back in seq order reproduces the stream exactly as recorded.
//
// # Idempotency
//
// Appending the same keyframe at the same seq twice is a no-op. Appending a
// different keyframe at an occupied seq is an error: a delta stream cannot
// be rewritten in place.
//
// # Integrity
//
// Every body is stored with its domain-separated SHA-256 hash (see
// keyframe.HashBody). Reads recompute the hash and fail with a
// CorruptionError on mismatch.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
