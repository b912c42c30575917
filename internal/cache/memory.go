package cache

import (
	"context"
	"sync"
	"time"

	"github.com/galasfoundry/mooch-auth/internal/model"
)

// Memory implements model.Cache in process memory. It exists for
// single-instance deployments without redis and for tests; revocation and
// lockout state kept here does not survive restarts and is not shared across
// instances.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	values   map[string]memoryValue
	counters map[string]memoryCounter
}

type memoryValue struct {
	value     string
	expiresAt time.Time
}

type memoryCounter struct {
	count     int64
	windowEnd time.Time
}

var _ model.Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		values:   make(map[string]memoryValue),
		counters: make(map[string]memoryCounter),
	}
}

// WithClock overrides the cache's time source and returns the cache.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryValue{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.values[key] = entry
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.values[key]
	if !ok {
		return "", model.ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.values, key)
		return "", model.ErrCacheMiss
	}
	return entry.value, nil
}

func (m *Memory) IncrementWithWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	counter := m.counters[key]
	if counter.windowEnd.IsZero() || now.After(counter.windowEnd) {
		counter = memoryCounter{windowEnd: now.Add(window)}
	}
	counter.count++
	m.counters[key] = counter
	return counter.count, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	delete(m.counters, key)
	return nil
}
