// Package redis defines the shared key-value store interface. Services
// depend on this interface, not on the go-redis client, so the presence
// registry and queues can be exercised against an in-memory fake in tests.
package redis

import (
	"context"
	"time"
)

// KVStore abstracts the shared store hosting the presence registry, the
// pending-notification queue and the dedup ledger. Every method is a
// single-key atomic operation; no cross-key transactions are offered.
type KVStore interface {
	// ==================== String ops ====================

	// Set stores a value with a TTL (0 means no expiry).
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns the value, or "" and nil when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// GetOrError returns the value, or a CodeNotFound error when absent.
	GetOrError(ctx context.Context, key string) (string, error)
	// SetNX stores the value only if the key is absent. Returns whether
	// the write happened. Backs the dedup ledger.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// ==================== Key ops ====================

	// Delete removes the key if it exists.
	Delete(ctx context.Context, key string) error
	// GetByPrefix returns every key/value pair whose key starts with
	// prefix. Backs ListByRole on the presence registry.
	GetByPrefix(ctx context.Context, prefix string) (map[string]string, error)

	// ==================== List ops ====================

	// AppendToList pushes value onto the tail of the list, trims the list
	// to its max most-recent entries, and refreshes the TTL. Backs the
	// bounded pending-notification queue.
	AppendToList(ctx context.Context, key string, value string, max int64, ttl time.Duration) error
	// ListRange returns the whole list head-to-tail without consuming it.
	ListRange(ctx context.Context, key string) ([]string, error)
	// DrainList returns the whole list head-to-tail and deletes the key
	// in one round trip.
	DrainList(ctx context.Context, key string) ([]string, error)
}

// AsyncKVStore adds non-blocking task submission for cache write-backs.
type AsyncKVStore interface {
	KVStore
	// SubmitTask queues an asynchronous cache task; falls back to running
	// it synchronously when the queue is full.
	SubmitTask(action func())
}
