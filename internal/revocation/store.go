// Package revocation tracks invalidated token identifiers. Lookups hit the
// distributed cache first; a persistent fallback survives cache restarts.
package revocation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
)

const keyPrefix = "revoked:"

// Store implements model.RevocationStore. Entries are written to both the
// cache and the fallback; reads consult the fallback only when the cache
// cannot answer, keeping the hot path free of database round-trips.
type Store struct {
	cache    model.Cache
	fallback model.RevocationFallback
	logger   *logger.Logger
	now      func() time.Time

	// degraded is set when a revocation landed in the fallback but not in
	// the cache. While set, a cache miss is not authoritative and the
	// fallback is consulted; a successful Warm clears it.
	degraded atomic.Bool
}

var _ model.RevocationStore = (*Store)(nil)

// NewStore creates a revocation store over the given cache and fallback.
func NewStore(cache model.Cache, fallback model.RevocationFallback, logger *logger.Logger) *Store {
	return &Store{cache: cache, fallback: fallback, logger: logger, now: time.Now}
}

// WithClock overrides the store's time source and returns the store.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Revoke blocks jti until expiresAt. Idempotent; an already-expired token is
// a no-op since nothing remains to block. The entry must land in at least
// one backend for the call to succeed.
func (s *Store) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	now := s.now()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}

	entry := model.RevocationEntry{JTI: jti, ExpiresAt: expiresAt, RevokedAt: now}

	cacheErr := s.cache.Set(ctx, keyPrefix+jti, now.UTC().Format(time.RFC3339), ttl)
	if cacheErr != nil {
		s.logger.Warn("revocation store: cache write failed",
			"jti", jti,
			"error", cacheErr.Error())
	}

	fallbackErr := s.fallback.Insert(ctx, entry)
	if fallbackErr != nil {
		s.logger.Warn("revocation store: fallback write failed",
			"jti", jti,
			"error", fallbackErr.Error())
	}

	if cacheErr != nil && fallbackErr != nil {
		return fmt.Errorf("%w: revocation not persisted", model.ErrUnavailable)
	}
	if cacheErr != nil {
		// The entry exists only in the fallback; misses must stop being
		// authoritative until the cache is re-warmed.
		s.degraded.Store(true)
	}
	return nil
}

// IsRevoked reports whether jti is blocked. A cache miss is authoritative
// unless the store is degraded by a failed cache write; then, and on cache
// errors, the fallback is consulted. When neither backend can answer,
// ErrUnavailable is returned and the caller's fail policy decides.
func (s *Store) IsRevoked(ctx context.Context, jti string) (bool, error) {
	_, err := s.cache.Get(ctx, keyPrefix+jti)
	if err == nil {
		return true, nil
	}
	switch {
	case errors.Is(err, model.ErrCacheMiss):
		if !s.degraded.Load() {
			return false, nil
		}
	case errors.Is(err, context.DeadlineExceeded):
		return false, fmt.Errorf("%w: revocation check timed out: %w", model.ErrUnavailable, err)
	default:
		s.logger.Warn("revocation store: cache read failed, falling back",
			"jti", jti,
			"error", err.Error())
	}

	revoked, err := s.fallback.Contains(ctx, jti, s.now())
	if err != nil {
		return false, fmt.Errorf("%w: revocation check failed", model.ErrUnavailable)
	}
	return revoked, nil
}

// GarbageCollect drops fallback entries whose token has expired anyway.
// Cache entries expire by TTL on their own.
func (s *Store) GarbageCollect(ctx context.Context, now time.Time) (int64, error) {
	removed, err := s.fallback.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to garbage collect revocations: %w", err)
	}
	return removed, nil
}

// Warm re-propagates live fallback entries into the cache and lifts the
// degraded state. Run after a cache restart so entries written during an
// outage are served from the hot path again.
func (s *Store) Warm(ctx context.Context) error {
	entries, err := s.fallback.ListLive(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list revocations for warmup: %w", err)
	}

	for _, entry := range entries {
		ttl := entry.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			continue
		}
		if err := s.cache.Set(ctx, keyPrefix+entry.JTI, entry.RevokedAt.UTC().Format(time.RFC3339), ttl); err != nil {
			return fmt.Errorf("failed to warm revocation cache: %w", err)
		}
	}

	s.degraded.Store(false)
	s.logger.Info("revocation store: cache warmed", "entries", len(entries))
	return nil
}
