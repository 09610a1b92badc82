// Package registry holds pending request listeners for one client channel.
//
// A Table maps opaque 64-bit keys to listeners. Keys combine a slot index with
// a per-table sequence number, so a key is never reused while the table lives
// and a stale key can never reach a newer listener occupying the same slot.
// The table is bounded and every entry carries a deadline; expired entries are
// reclaimed by Expire instead of living for the lifetime of the channel.
package registry
