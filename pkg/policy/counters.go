package policy

import (
	"context"
	"sync"
	"time"
)

// CounterStore backs the shared rate and budget counters. Counters carry a
// TTL set on first write; Incr and Add are atomic across workers.
type CounterStore interface {
	// Incr adds one to the counter and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Add adds n to the counter and returns the new value.
	Add(ctx context.Context, key string, n int64, ttl time.Duration) (int64, error)
	// Get returns the current value, zero when absent or expired.
	Get(ctx context.Context, key string) (int64, error)
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// MemoryCounterStore is the in-process fallback: a mutex-guarded map with
// explicit expiry timestamps evaluated on each access.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	now      func() time.Time
}

// NewMemoryCounterStore creates an empty in-process counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		counters: make(map[string]*memoryCounter),
		now:      time.Now,
	}
}

// get returns the live counter for key, dropping it first when expired.
// Callers hold mu.
func (s *MemoryCounterStore) get(key string) *memoryCounter {
	c, ok := s.counters[key]
	if ok && s.now().After(c.expiresAt) {
		delete(s.counters, key)
		ok = false
	}
	if !ok {
		return nil
	}
	return c
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return s.add(key, 1, ttl)
}

func (s *MemoryCounterStore) Add(_ context.Context, key string, n int64, ttl time.Duration) (int64, error) {
	return s.add(key, n, ttl)
}

func (s *MemoryCounterStore) add(key string, n int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeExpiredLocked()

	c := s.get(key)
	if c == nil {
		c = &memoryCounter{expiresAt: s.now().Add(ttl)}
		s.counters[key] = c
	}
	c.value += n
	return c.value, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.get(key)
	if c == nil {
		return 0, nil
	}
	return c.value, nil
}

// purgeExpiredLocked drops expired counters opportunistically so the map
// does not grow without bound. Callers hold mu.
func (s *MemoryCounterStore) purgeExpiredLocked() {
	now := s.now()
	for key, c := range s.counters {
		if now.After(c.expiresAt) {
			delete(s.counters, key)
		}
	}
}
