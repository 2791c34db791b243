package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavebreak/ratelimit/internal/store"
)

// unreachableStore simulates a store outage for handler tests.
type unreachableStore struct{}

func (unreachableStore) AtomicUpdate(ctx context.Context, key string, ttl time.Duration, fn store.UpdateFunc) ([]byte, error) {
	return nil, store.ErrUnavailable
}

func (unreachableStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return store.ErrUnavailable
}

func TestHeaderExtractor(t *testing.T) {
	ex := NewHeaderExtractor("X-Api-Key", "X-Tenant")

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Api-Key", "abc")
	req.Header.Set("X-Tenant", "t1")

	got, err := ex.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "abc-t1", got)
}

func TestHeaderExtractorMissingHeader(t *testing.T) {
	ex := NewHeaderExtractor("X-Api-Key")

	req := httptest.NewRequest("GET", "/", nil)
	_, err := ex.Extract(req)
	assert.Error(t, err)
}

func TestIPExtractorFromRemoteAddr(t *testing.T) {
	ex := NewIPExtractor(false)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"

	got, err := ex.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got)
}

func TestIPExtractorIgnoresForwardedWhenUntrusted(t *testing.T) {
	ex := NewIPExtractor(false)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	got, err := ex.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got)
}

func TestIPExtractorTrustsForwardedFirstHop(t *testing.T) {
	ex := NewIPExtractor(true)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	got, err := ex.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", got)
}
