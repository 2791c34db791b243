// Package rule defines rate limit rules and the registry that resolves
// them per route.
package rule

import (
	"errors"
	"fmt"
	"time"
)

// Algorithm selects which strategy evaluates a rule.
type Algorithm string

const (
	TokenBucket    Algorithm = "token_bucket"
	LeakyBucket    Algorithm = "leaky_bucket"
	FixedWindow    Algorithm = "fixed_window"
	SlidingLog     Algorithm = "sliding_log"
	SlidingCounter Algorithm = "sliding_counter"
)

// Scope describes how the client key for a rule is derived.
type Scope string

const (
	ScopeIP     Scope = "ip"
	ScopeAPIKey Scope = "api_key"
	ScopeRoute  Scope = "route"
)

var (
	ErrEmptyID          = errors.New("rule: id must not be empty")
	ErrInvalidLimit     = errors.New("rule: limit must be positive")
	ErrInvalidWindow    = errors.New("rule: window must be positive")
	ErrInvalidBurst     = errors.New("rule: burst must not be negative")
	ErrUnknownAlgorithm = errors.New("rule: unknown algorithm")
	ErrUnknownScope     = errors.New("rule: unknown scope")
)

// Rule describes a single quota. Rules are immutable once loaded; the
// registry hands out copies and never mutates them after installation.
type Rule struct {
	// ID namespaces the rule's counter state in the store.
	ID string

	// Limit is the maximum number of requests per Window.
	Limit int

	// Window is the quota interval.
	Window time.Duration

	// Algorithm selects the strategy that enforces the rule.
	Algorithm Algorithm

	// Burst is the instantaneous allowance for the bucket algorithms.
	// Zero means "same as Limit" (see Normalize).
	Burst int

	// Scope selects which request attribute identifies the client.
	Scope Scope

	// Routes restricts the rule to specific routes. Empty matches all.
	Routes []string
}

// Normalize returns a copy of the rule with defaults applied.
func (r Rule) Normalize() Rule {
	if r.Burst == 0 {
		r.Burst = r.Limit
	}
	if r.Scope == "" {
		r.Scope = ScopeIP
	}
	return r
}

// Validate rejects malformed rules at configuration load time, before
// they can reach request evaluation.
func (r Rule) Validate() error {
	if r.ID == "" {
		return ErrEmptyID
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, r.Limit)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: got %s", ErrInvalidWindow, r.Window)
	}
	if r.Burst < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidBurst, r.Burst)
	}
	switch r.Algorithm {
	case TokenBucket, LeakyBucket, FixedWindow, SlidingLog, SlidingCounter:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, r.Algorithm)
	}
	switch r.Scope {
	case ScopeIP, ScopeAPIKey, ScopeRoute:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScope, r.Scope)
	}
	return nil
}

// RatePerSecond is the steady-state admission rate the rule allows.
func (r Rule) RatePerSecond() float64 {
	return float64(r.Limit) / r.Window.Seconds()
}
