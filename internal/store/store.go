// Package store provides the shared counter state backends used by the
// rate limiting strategies.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the backing store could not be reached or
// timed out. The service layer maps it to the configured failure policy.
var ErrUnavailable = errors.New("store: unavailable")

// UpdateFunc computes the next state for a key. current is nil when the
// key does not exist. The returned bytes are persisted unconditionally;
// returning an error aborts the update.
//
// The function may run more than once when the backend retries on
// contention, so it must be free of side effects other than its result.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the synchronization point shared by all limiter instances.
//
// AtomicUpdate must behave as an indivisible read-modify-write: no other
// caller's update on the same key may interleave between the read of the
// current state and the write of its replacement. Updates on different
// keys proceed independently.
type Store interface {
	AtomicUpdate(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, error)

	// SetWithExpiry overwrites a key's state, expiring it after ttl.
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
