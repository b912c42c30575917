package model

import (
	"context"
	"time"
)

// Cache is the narrow key-value contract over the distributed cache. Get
// returns ErrCacheMiss for absent keys; every call honors the deadline on ctx.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)

	// IncrementWithWindow atomically increments key and starts its expiry
	// window on first increment. It returns the count inside the current
	// window.
	IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	Delete(ctx context.Context, key string) error
}

// LockoutGuard throttles repeated authentication failures per key.
type LockoutGuard interface {
	// Allow returns ErrTooManyAttempts while the key is locked.
	Allow(ctx context.Context, key string) error
	// RecordFailure counts one failed attempt and locks the key once the
	// configured threshold is crossed within the window.
	RecordFailure(ctx context.Context, key string) error
	// Reset clears the failure count after a successful attempt.
	Reset(ctx context.Context, key string) error
}
