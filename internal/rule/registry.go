package rule

import (
	"fmt"
	"sync/atomic"
)

type snapshot struct {
	global  []Rule
	byRoute map[string][]Rule
}

// Registry resolves the rules applying to a route. The rule set is held
// as an immutable snapshot behind an atomic pointer: a reload swaps the
// whole snapshot, so concurrent evaluators never observe a partial
// update.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry validates the given rules and builds a registry from them.
func NewRegistry(rules ...Rule) (*Registry, error) {
	reg := &Registry{}
	if err := reg.Replace(rules); err != nil {
		return nil, err
	}
	return reg, nil
}

// Replace validates every rule and atomically installs the set as the
// new snapshot. On error the previous snapshot stays in place untouched.
func (g *Registry) Replace(rules []Rule) error {
	next := &snapshot{byRoute: make(map[string][]Rule)}
	for _, r := range rules {
		r = r.Normalize()
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
		if len(r.Routes) == 0 {
			next.global = append(next.global, r)
			continue
		}
		for _, route := range r.Routes {
			next.byRoute[route] = append(next.byRoute[route], r)
		}
	}
	g.snap.Store(next)
	return nil
}

// Resolve returns the rules applying to a route: route-specific rules
// first, then global ones. The returned slice is fresh; callers may not
// mutate the rules themselves. Resolve is read-only and yields the same
// result for the same route until the snapshot is replaced.
func (g *Registry) Resolve(route string) []Rule {
	s := g.snap.Load()
	if s == nil {
		return nil
	}
	scoped := s.byRoute[route]
	out := make([]Rule, 0, len(scoped)+len(s.global))
	out = append(out, scoped...)
	out = append(out, s.global...)
	return out
}
