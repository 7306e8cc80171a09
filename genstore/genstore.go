// Package genstore keeps per-key version counters. The ssdb backend issues
// CAS tokens from them: every write bumps the key's version and a
// compare-and-set only lands if it observes the version it was issued.
package genstore

import "context"

// GenStore abstracts where versions live.
// Use LocalGenStore for a single process, or RedisGenStore to share versions
// between every client of the same server.
type GenStore interface {
	// Snapshot returns the current version; missing => 0.
	Snapshot(ctx context.Context, key string) (uint64, error)
	// Bump atomically increments and returns the new version.
	Bump(ctx context.Context, key string) (uint64, error)
	// BumpMany increments every key, in one round-trip where possible.
	BumpMany(ctx context.Context, keys []string) error
	// Close releases resources (no-op ok).
	Close(context.Context) error
}
