package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory implements Store with a process-local map. Its state is not
// visible to other limiter instances, so it is authoritative only for
// single-node deployments; it also backs the strategy unit tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory creates a memory store on the system clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates a memory store whose TTL handling follows
// the given clock. Tests use this with a controllable now func.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: now}
}

func (s *Memory) AtomicUpdate(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var current []byte
	if ent, ok := s.entries[key]; ok {
		if ent.expiresAt.IsZero() || ent.expiresAt.After(now) {
			current = ent.value
		} else {
			delete(s.entries, key)
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	ent := memoryEntry{value: next}
	if ttl > 0 {
		ent.expiresAt = now.Add(ttl)
	}
	s.entries[key] = ent
	return next, nil
}

func (s *Memory) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ent := memoryEntry{value: value}
	if ttl > 0 {
		ent.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = ent
	return nil
}

// Len reports the number of live entries, pruning expired ones first.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, ent := range s.entries {
		if !ent.expiresAt.IsZero() && !ent.expiresAt.After(now) {
			delete(s.entries, k)
		}
	}
	return len(s.entries)
}
