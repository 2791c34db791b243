package limiter

import (
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

// testClock is a manually advanced clock shared by a strategy and its
// store so TTL handling and window math see the same time.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 10, 9, 15, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(clk *testClock) *store.Memory {
	return store.NewMemoryWithClock(clk.Now)
}

func normalized(r rule.Rule) rule.Rule {
	return r.Normalize()
}
