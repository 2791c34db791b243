package limiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

type slidingCounterState struct {
	PrevCount   int   `json:"previous_window_count"`
	CurrCount   int   `json:"current_window_count"`
	WindowStart int64 `json:"current_window_start"` // unix nanoseconds, window-aligned
}

// SlidingCounter approximates the sliding log with two counters: the
// current window's count plus the previous window's count weighted by
// how much of it still overlaps the rolling window. The approximation
// assumes requests were spread uniformly across the previous window, so
// it is a bounded-error estimate, not exact.
type SlidingCounter struct {
	store store.Store
	now   func() time.Time
}

func NewSlidingCounter(s store.Store, now func() time.Time) *SlidingCounter {
	return &SlidingCounter{store: s, now: now}
}

func (c *SlidingCounter) Run(ctx context.Context, key string, r rule.Rule) (*Decision, error) {
	now := c.now()
	windowStart := now.Truncate(r.Window)
	decision := &Decision{Limit: r.Limit, Window: r.Window}

	// the previous window's count stays relevant for a full extra window
	ttl := 2 * r.Window

	_, err := c.store.AtomicUpdate(ctx, "sliding_counter:"+key, ttl, func(current []byte) ([]byte, error) {
		st := slidingCounterState{WindowStart: windowStart.UnixNano()}
		if current != nil {
			if err := json.Unmarshal(current, &st); err != nil {
				return nil, err
			}
			switch st.WindowStart {
			case windowStart.UnixNano():
				// still in the same window
			case windowStart.Add(-r.Window).UnixNano():
				// crossed exactly one boundary
				st.PrevCount, st.CurrCount = st.CurrCount, 0
				st.WindowStart = windowStart.UnixNano()
			default:
				// idle for over a full window; both counts are stale
				st.PrevCount, st.CurrCount = 0, 0
				st.WindowStart = windowStart.UnixNano()
			}
		}

		overlap := 1 - now.Sub(windowStart).Seconds()/r.Window.Seconds()
		weighted := float64(st.CurrCount) + float64(st.PrevCount)*overlap

		if weighted < float64(r.Limit) {
			st.CurrCount++
			decision.Allowed = true
			remaining := int(float64(r.Limit) - weighted - 1)
			if remaining < 0 {
				remaining = 0
			}
			decision.Remaining = remaining
			decision.RetryAfter = 0
		} else {
			decision.Allowed = false
			decision.Remaining = 0
			decision.RetryAfter = c.retryAfter(weighted, st, r, windowStart, now)
		}

		return json.Marshal(&st)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}

// retryAfter estimates when the weighted count decays below the limit.
// While the previous window overlaps, the weight drains linearly at
// PrevCount/Window per second; the estimate is clamped to the end of the
// current window, where the previous count drops out entirely. Larger
// overshoot yields a larger estimate.
func (c *SlidingCounter) retryAfter(weighted float64, st slidingCounterState, r rule.Rule, windowStart, now time.Time) time.Duration {
	remainInWindow := windowStart.Add(r.Window).Sub(now)
	if st.PrevCount <= 0 {
		return remainInWindow
	}
	overshoot := weighted - float64(r.Limit) + 1
	retry := time.Duration(overshoot / float64(st.PrevCount) * float64(r.Window))
	if retry > remainInWindow {
		retry = remainInWindow
	}
	if retry < 0 {
		retry = 0
	}
	return retry
}
