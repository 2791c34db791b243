package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wavebreak/ratelimit/internal/log"
)

// Retries bound the optimistic transaction loop under contention. Each
// retry re-reads the key, so a hot key converges instead of livelocking.
const defaultTxRetries = 16

// Redis implements Store on a Redis instance shared by every limiter
// replica in a deployment. Updates run as optimistic WATCH/MULTI
// transactions: if another writer touches the key between the read and
// the write, the transaction fails and is retried with a fresh read.
type Redis struct {
	client  *redis.Client
	retries int
}

// NewRedis wraps an existing client. The caller owns the client's
// lifecycle.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, retries: defaultTxRetries}
}

// AtomicUpdate applies fn to the key's current state inside a watched
// transaction. The TTL is refreshed on every successful transition so
// idle keys expire on their own.
func (s *Redis) AtomicUpdate(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, error) {
	var next []byte
	var fnErr error

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return err
			}
			current = nil
		}
		next, fnErr = fn(current)
		if fnErr != nil {
			return fnErr
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < s.retries; i++ {
		err := s.client.Watch(ctx, txn, key)
		switch {
		case err == nil:
			return next, nil
		case errors.Is(err, redis.TxFailedErr):
			// another writer got there first; re-read and retry
			continue
		case fnErr != nil && errors.Is(err, fnErr):
			return nil, fnErr
		default:
			log.Logger().Error("redis atomic update failed",
				zap.String("key", key), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return nil, fmt.Errorf("%w: transaction contention on %q", ErrUnavailable, key)
}

func (s *Redis) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
