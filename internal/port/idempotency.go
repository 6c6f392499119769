package port

import (
	"context"
	"time"
)

// IdempotencyStore is a shared key-value store with expiring entries. All
// operations must be atomic across processes.
type IdempotencyStore interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// SetIfAbsent writes value under key with ttl unless key already exists.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Increment adds one to the counter under key and refreshes its ttl.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Delete removes keys.
	Delete(ctx context.Context, keys ...string) error
}

// DeliveryLock leases a message id to a single worker while an attempt is in flight.
type DeliveryLock interface {
	// Acquire returns a release func, or ok=false when another worker holds the lease.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}
