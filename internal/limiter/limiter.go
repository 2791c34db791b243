// Package limiter implements the admission control algorithms. Each
// strategy performs its state transition through the shared store's
// AtomicUpdate; a plain read-compute-write sequence would over-admit
// under concurrent callers, which is exactly the failure mode this
// package exists to prevent.
package limiter

import (
	"context"
	"time"

	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

// Decision is the outcome of evaluating one request against one rule.
// A decision is created fresh per evaluation and never persisted.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Limit      int
	Window     time.Duration
}

// Strategy decides whether the request identified by key is admitted
// under r. now is taken once per call so that a single evaluation sees a
// consistent timestamp even when the store retries the transition.
type Strategy interface {
	Run(ctx context.Context, key string, r rule.Rule) (*Decision, error)
}

// Strategies builds the full strategy set on one store. Dispatch by
// rule.Algorithm is a pure map lookup; the set is closed.
func Strategies(s store.Store, now func() time.Time) map[rule.Algorithm]Strategy {
	return map[rule.Algorithm]Strategy{
		rule.TokenBucket:    NewTokenBucket(s, now),
		rule.LeakyBucket:    NewLeakyBucket(s, now),
		rule.FixedWindow:    NewFixedWindow(s, now),
		rule.SlidingLog:     NewSlidingLog(s, now),
		rule.SlidingCounter: NewSlidingCounter(s, now),
	}
}
