package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wavebreak/ratelimit/internal/rule"
)

const (
	fallbackIdleTTL    = 15 * time.Minute
	fallbackSweepEvery = 2 * time.Minute
)

// fallbackGuard applies instance-local token buckets while the shared
// store is unreachable. Each key gets a rate.Limiter mirroring its
// rule's steady rate and burst. Entries idle past fallbackIdleTTL are
// swept opportunistically on the next call.
type fallbackGuard struct {
	mu        sync.Mutex
	entries   map[string]*fallbackEntry
	now       func() time.Time
	lastSweep time.Time
}

type fallbackEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newFallbackGuard(now func() time.Time) *fallbackGuard {
	return &fallbackGuard{
		entries: make(map[string]*fallbackEntry),
		now:     now,
	}
}

func (g *fallbackGuard) allow(key string, r rule.Rule) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	ent, ok := g.entries[key]
	if !ok {
		ent = &fallbackEntry{lim: rate.NewLimiter(rate.Limit(r.RatePerSecond()), r.Burst)}
		g.entries[key] = ent
	}
	ent.lastSeen = now

	if now.Sub(g.lastSweep) >= fallbackSweepEvery {
		g.sweepLocked(now)
	}
	return ent.lim.AllowN(now, 1)
}

func (g *fallbackGuard) sweepLocked(now time.Time) {
	cutoff := now.Add(-fallbackIdleTTL)
	for k, ent := range g.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(g.entries, k)
		}
	}
	g.lastSweep = now
}
