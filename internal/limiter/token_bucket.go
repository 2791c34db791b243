package limiter

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

type tokenBucketState struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"last_refill"` // unix nanoseconds
}

// TokenBucket admits bursts up to the rule's burst capacity and refills
// continuously at limit/window tokens per second. A full bucket greets
// the first request from a client.
type TokenBucket struct {
	store store.Store
	now   func() time.Time
}

func NewTokenBucket(s store.Store, now func() time.Time) *TokenBucket {
	return &TokenBucket{store: s, now: now}
}

func (b *TokenBucket) Run(ctx context.Context, key string, r rule.Rule) (*Decision, error) {
	now := b.now()
	rate := r.RatePerSecond()
	decision := &Decision{Limit: r.Limit, Window: r.Window}

	_, err := b.store.AtomicUpdate(ctx, "token_bucket:"+key, r.Window, func(current []byte) ([]byte, error) {
		st := tokenBucketState{Tokens: float64(r.Burst), LastRefill: now.UnixNano()}
		if current != nil {
			if err := json.Unmarshal(current, &st); err != nil {
				return nil, err
			}
			elapsed := time.Duration(now.UnixNano() - st.LastRefill).Seconds()
			if elapsed < 0 {
				// clock skew between instances; treat as no refill
				elapsed = 0
			}
			st.Tokens = math.Min(float64(r.Burst), st.Tokens+elapsed*rate)
			st.LastRefill = now.UnixNano()
		}

		if st.Tokens >= 1 {
			st.Tokens--
			decision.Allowed = true
			decision.Remaining = int(st.Tokens)
			decision.RetryAfter = 0
		} else {
			decision.Allowed = false
			decision.Remaining = 0
			decision.RetryAfter = time.Duration((1 - st.Tokens) / rate * float64(time.Second))
		}

		// the refill is persisted even when the request is rejected
		return json.Marshal(st)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
