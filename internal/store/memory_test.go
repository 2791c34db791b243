package store

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func increment(current []byte) ([]byte, error) {
	n := 0
	if current != nil {
		var err error
		n, err = strconv.Atoi(string(current))
		if err != nil {
			return nil, err
		}
	}
	return []byte(strconv.Itoa(n + 1)), nil
}

func TestMemoryAtomicUpdate(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	got, err := s.AtomicUpdate(ctx, "counter", time.Minute, increment)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	got, err = s.AtomicUpdate(ctx, "counter", time.Minute, increment)
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))
}

func TestMemoryTTLExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	_, err := s.AtomicUpdate(ctx, "counter", 10*time.Second, increment)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	now = now.Add(11 * time.Second)
	got, err := s.AtomicUpdate(ctx, "counter", 10*time.Second, increment)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got), "expired state must read as missing")
}

func TestMemorySetWithExpiry(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryWithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.SetWithExpiry(ctx, "seed", []byte("41"), 5*time.Second))

	got, err := s.AtomicUpdate(ctx, "seed", 5*time.Second, increment)
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))

	now = now.Add(6 * time.Second)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryCancelledContext(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.AtomicUpdate(ctx, "counter", time.Minute, increment)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.SetWithExpiry(ctx, "counter", []byte("1"), time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMemoryConcurrentUpdatesDoNotLoseIncrements(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	const workers = 100
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.AtomicUpdate(ctx, "counter", time.Minute, increment)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.AtomicUpdate(ctx, "counter", time.Minute, func(current []byte) ([]byte, error) {
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(workers), string(got))
}
