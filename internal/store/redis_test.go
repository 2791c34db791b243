package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return server, NewRedis(client)
}

func TestRedisAtomicUpdate(t *testing.T) {
	server, s := newTestRedis(t)
	ctx := context.Background()

	got, err := s.AtomicUpdate(ctx, "counter", time.Minute, increment)
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	got, err = s.AtomicUpdate(ctx, "counter", time.Minute, increment)
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	stored, err := server.Get("counter")
	require.NoError(t, err)
	assert.Equal(t, "2", stored)
}

func TestRedisAtomicUpdateSetsTTL(t *testing.T) {
	server, s := newTestRedis(t)
	ctx := context.Background()

	_, err := s.AtomicUpdate(ctx, "counter", 30*time.Second, increment)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, server.TTL("counter"))

	server.FastForward(31 * time.Second)
	assert.False(t, server.Exists("counter"), "state must expire after the TTL")
}

func TestRedisSetWithExpiry(t *testing.T) {
	server, s := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.SetWithExpiry(ctx, "seed", []byte("41"), 10*time.Second))

	got, err := s.AtomicUpdate(ctx, "seed", 10*time.Second, increment)
	require.NoError(t, err)
	assert.Equal(t, "42", string(got))

	server.FastForward(11 * time.Second)
	assert.False(t, server.Exists("seed"))
}

func TestRedisUnavailable(t *testing.T) {
	server, s := newTestRedis(t)
	server.Close()

	_, err := s.AtomicUpdate(context.Background(), "counter", time.Minute, increment)
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.SetWithExpiry(context.Background(), "counter", []byte("1"), time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisUpdateFuncErrorIsNotMaskedAsUnavailable(t *testing.T) {
	_, s := newTestRedis(t)

	_, err := s.AtomicUpdate(context.Background(), "counter", time.Minute, func(current []byte) ([]byte, error) {
		return increment([]byte("not-a-number"))
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}
