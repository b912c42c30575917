// Package lockout throttles repeated authentication failures per identity or
// origin key with a Clear -> Warning -> Locked state machine over the cache.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/galasfoundry/mooch-auth/internal/logger"
	"github.com/galasfoundry/mooch-auth/internal/model"
)

const (
	failKeyPrefix = "lockout:fail:"
	lockKeyPrefix = "lockout:lock:"
)

// Guard counts failures in a rolling window and locks a key once the
// threshold is crossed. The counter lives at the cache so concurrent
// failures increment atomically instead of read-modify-write in the caller.
type Guard struct {
	cache     model.Cache
	threshold int
	window    time.Duration
	duration  time.Duration
	logger    *logger.Logger
}

var _ model.LockoutGuard = (*Guard)(nil)

// NewGuard creates a Guard with the given threshold, counting window and
// lockout duration.
func NewGuard(cache model.Cache, threshold int, window, duration time.Duration, logger *logger.Logger) *Guard {
	return &Guard{
		cache:     cache,
		threshold: threshold,
		window:    window,
		duration:  duration,
		logger:    logger,
	}
}

// Allow returns ErrTooManyAttempts while key is locked. A cache outage does
// not lock everyone out; the guard logs and allows, leaving the credential
// check to decide.
func (g *Guard) Allow(ctx context.Context, key string) error {
	_, err := g.cache.Get(ctx, lockKeyPrefix+key)
	if err == nil {
		return model.ErrTooManyAttempts
	}
	if errors.Is(err, model.ErrCacheMiss) {
		return nil
	}
	g.logger.Warn("lockout guard: cache unavailable, allowing attempt",
		"key", key,
		"error", err.Error())
	return nil
}

// RecordFailure counts one failed attempt. Crossing the threshold locks the
// key for the lockout duration and zeroes the counter, so the state after
// the lock expires is Clear, not Warning.
func (g *Guard) RecordFailure(ctx context.Context, key string) error {
	count, err := g.cache.IncrementWithWindow(ctx, failKeyPrefix+key, g.window)
	if err != nil {
		return fmt.Errorf("failed to count login failure: %w", err)
	}

	if count >= int64(g.threshold) {
		if err := g.cache.Set(ctx, lockKeyPrefix+key, "1", g.duration); err != nil {
			return fmt.Errorf("failed to lock key: %w", err)
		}
		if err := g.cache.Delete(ctx, failKeyPrefix+key); err != nil {
			g.logger.Warn("lockout guard: failed to clear counter after lock",
				"key", key,
				"error", err.Error())
		}
		g.logger.Info("lockout guard: key locked",
			"key", key,
			"failures", count,
			"duration", g.duration.String())
	}
	return nil
}

// Reset clears the failure counter after a successful attempt, moving a key
// in Warning back to Clear.
func (g *Guard) Reset(ctx context.Context, key string) error {
	if err := g.cache.Delete(ctx, failKeyPrefix+key); err != nil {
		return fmt.Errorf("failed to reset failure counter: %w", err)
	}
	return nil
}
