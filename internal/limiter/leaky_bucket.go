package limiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

type leakyBucketState struct {
	QueueSize int   `json:"queue_size"`
	LastLeak  int64 `json:"last_leak"` // unix nanoseconds
}

// LeakyBucket models a queue of capacity rule.Burst drained at
// limit/window requests per second. Admission means the request fit in
// the queue. LastLeak only advances when at least one whole slot has
// leaked, so sub-interval traffic is not starved by truncation.
type LeakyBucket struct {
	store store.Store
	now   func() time.Time
}

func NewLeakyBucket(s store.Store, now func() time.Time) *LeakyBucket {
	return &LeakyBucket{store: s, now: now}
}

func (b *LeakyBucket) Run(ctx context.Context, key string, r rule.Rule) (*Decision, error) {
	now := b.now()
	rate := r.RatePerSecond()
	capacity := r.Burst
	decision := &Decision{Limit: r.Limit, Window: r.Window}

	_, err := b.store.AtomicUpdate(ctx, "leaky_bucket:"+key, r.Window, func(current []byte) ([]byte, error) {
		st := leakyBucketState{LastLeak: now.UnixNano()}
		if current != nil {
			if err := json.Unmarshal(current, &st); err != nil {
				return nil, err
			}
			elapsed := time.Duration(now.UnixNano() - st.LastLeak).Seconds()
			if elapsed < 0 {
				elapsed = 0
			}
			if leaked := int(elapsed * rate); leaked > 0 {
				st.QueueSize -= leaked
				if st.QueueSize < 0 {
					st.QueueSize = 0
				}
				st.LastLeak = now.UnixNano()
			}
		}

		if st.QueueSize < capacity {
			st.QueueSize++
			decision.Allowed = true
			decision.Remaining = capacity - st.QueueSize
			decision.RetryAfter = 0
		} else {
			decision.Allowed = false
			decision.Remaining = 0
			// time until the next slot frees up
			sinceLeak := time.Duration(now.UnixNano() - st.LastLeak)
			retry := time.Duration(float64(time.Second)/rate) - sinceLeak
			if retry < 0 {
				retry = 0
			}
			decision.RetryAfter = retry
		}

		return json.Marshal(st)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
