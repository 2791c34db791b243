package limiter

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

type fixedWindowState struct {
	WindowStart int64 `json:"window_start"` // unix nanoseconds, window-aligned
	Count       int   `json:"count"`
}

// FixedWindow counts requests inside calendar-aligned windows. Up to
// 2x the limit can pass within a rolling interval that straddles a
// window boundary; that is the documented trade-off of the algorithm,
// not something this implementation papers over.
type FixedWindow struct {
	store store.Store
	now   func() time.Time
}

func NewFixedWindow(s store.Store, now func() time.Time) *FixedWindow {
	return &FixedWindow{store: s, now: now}
}

func (f *FixedWindow) Run(ctx context.Context, key string, r rule.Rule) (*Decision, error) {
	now := f.now()
	windowStart := now.Truncate(r.Window)
	decision := &Decision{Limit: r.Limit, Window: r.Window}

	_, err := f.store.AtomicUpdate(ctx, "fixed_window:"+key, r.Window, func(current []byte) ([]byte, error) {
		st := fixedWindowState{WindowStart: windowStart.UnixNano()}
		if current != nil {
			if err := json.Unmarshal(current, &st); err != nil {
				return nil, err
			}
			if st.WindowStart != windowStart.UnixNano() {
				st.WindowStart = windowStart.UnixNano()
				st.Count = 0
			}
		}

		if st.Count < r.Limit {
			st.Count++
			decision.Allowed = true
			decision.Remaining = r.Limit - st.Count
			decision.RetryAfter = 0
		} else {
			decision.Allowed = false
			decision.Remaining = 0
			decision.RetryAfter = windowStart.Add(r.Window).Sub(now)
		}

		return json.Marshal(st)
	})
	if err != nil {
		return nil, err
	}
	return decision, nil
}
