// Package store abstracts the memory store: a key/value store with atomic
// set-if-absent, multi-get, key-pattern scan, and list push/range/trim --
// the primitives the Ticket, Worker, and Event agents build on.
package store

import "context"

// Store is the memory store client contract. It is deliberately small and
// Redis-shaped: every method maps to one Redis command family, so the
// Redis-backed implementation is a thin wrapper and the in-memory fake used
// in tests stays trivial to keep correct.
type Store interface {
	// Get returns the value at key, or ok=false if it does not exist.
	Get(ctx context.Context, key string) (val string, ok bool, err error)
	// Set unconditionally writes key.
	Set(ctx context.Context, key, val string) error
	// SetXX writes key only if it already exists; ok reports whether the
	// write happened. Used by UpdateHeartbeat so a torn-down worker is
	// never resurrected by a late heartbeat.
	SetXX(ctx context.Context, key, val string) (ok bool, err error)
	// SetNX writes key only if it does not already exist; created reports
	// whether this call created it. This is the ticket agent's atomic
	// mutual-exclusion primitive.
	SetNX(ctx context.Context, key, val string) (created bool, err error)
	// MSet writes every key in kvs in one round trip.
	MSet(ctx context.Context, kvs map[string]string) error
	// MGet reads every key in keys in one round trip; missing keys yield a
	// nil entry at the same index.
	MGet(ctx context.Context, keys []string) ([]*string, error)
	// Delete removes the given keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (removed int, err error)
	// Keys returns every key matching a glob pattern (e.g. "t:worker:*:status").
	Keys(ctx context.Context, pattern string) ([]string, error)
	// RPush appends vals to the tail of the list at key.
	RPush(ctx context.Context, key string, vals ...string) error
	// LRange returns list elements in [start, stop] (stop=-1 means "to the end").
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// LTrim keeps only list elements in [start, stop], discarding the rest.
	LTrim(ctx context.Context, key string, start, stop int64) error
	// Close releases any underlying connection.
	Close() error
}
