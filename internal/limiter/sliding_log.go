package limiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

type slidingLogState struct {
	// Timestamps of admitted requests, oldest first, unix nanoseconds.
	Timestamps []int64 `json:"timestamps"`
}

// SlidingLog keeps the timestamp of every admitted request and enforces
// the limit over an exact rolling window. Memory per key is
// O(requests in window); that is the price of exactness compared to the
// counter variant. Rejected requests are not recorded.
type SlidingLog struct {
	store store.Store
	now   func() time.Time
}

func NewSlidingLog(s store.Store, now func() time.Time) *SlidingLog {
	return &SlidingLog{store: s, now: now}
}

func (l *SlidingLog) Run(ctx context.Context, key string, r rule.Rule) (*Decision, error) {
	now := l.now()
	cutoff := now.Add(-r.Window).UnixNano()
	decision := &Decision{Limit: r.Limit, Window: r.Window}

	_, err := l.store.AtomicUpdate(ctx, "sliding_log:"+key, r.Window, func(current []byte) ([]byte, error) {
		var st slidingLogState
		if current != nil {
			if err := json.Unmarshal(current, &st); err != nil {
				return nil, err
			}
		}

		// drop timestamps that have fallen out of the rolling window
		kept := st.Timestamps[:0]
		for _, ts := range st.Timestamps {
			if ts > cutoff {
				kept = append(kept, ts)
			}
		}
		st.Timestamps = kept

		count := len(st.Timestamps)
		if count < r.Limit {
			st.Timestamps = append(st.Timestamps, now.UnixNano())
			decision.Allowed = true
			decision.Remaining = r.Limit - count - 1
			decision.RetryAfter = 0
		} else {
			oldest := st.Timestamps[0]
			decision.Allowed = false
			decision.Remaining = 0
			decision.RetryAfter = time.Duration(oldest - cutoff)
		}

		return json.Marshal(&st)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
