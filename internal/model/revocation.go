package model

import (
	"context"
	"time"
)

// RevocationStore tracks invalidated token identifiers until the token they
// block would have expired anyway.
type RevocationStore interface {
	// Revoke is an idempotent insert; calling it twice for the same jti is
	// safe.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error

	// IsRevoked is consulted on every verification. It returns
	// ErrUnavailable when no authoritative answer can be obtained.
	IsRevoked(ctx context.Context, jti string) (bool, error)

	// GarbageCollect drops entries whose copied expiry has passed.
	GarbageCollect(ctx context.Context, now time.Time) (int64, error)
}

// RevocationEntry blocks one token identifier. ExpiresAt is copied from the
// token so the entry can be garbage collected once the token would have died
// of natural expiry.
type RevocationEntry struct {
	JTI       string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// RevocationFallback is the persistent backstop behind the cache-backed
// revocation store.
type RevocationFallback interface {
	Insert(ctx context.Context, entry RevocationEntry) error
	Contains(ctx context.Context, jti string, now time.Time) (bool, error)
	ListLive(ctx context.Context, now time.Time) ([]RevocationEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
