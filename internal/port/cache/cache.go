// Package cache defines the port for the byte-value caches backing the
// transcript read path.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys. Implementations
// are the in-process L1, the shared KV L2, and the tiered composite;
// values are rendered transcript JSON documents.
type Cache interface {
	// Get returns the cached value and whether the key was present.
	// A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for at most ttl. Backends may treat
	// ttl as advisory (the KV tier expires per bucket) and may reject
	// entries without reporting an error.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}
