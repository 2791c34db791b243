// Package service resolves the rules applying to a request, dispatches
// them to the matching algorithm strategy and aggregates the result into
// a single admission decision.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/wavebreak/ratelimit/internal/limiter"
	"github.com/wavebreak/ratelimit/internal/log"
	"github.com/wavebreak/ratelimit/internal/rule"
	"github.com/wavebreak/ratelimit/internal/store"
)

// FailurePolicy selects the behavior when the shared store cannot be
// reached. It is deployment configuration, never hardcoded.
type FailurePolicy int

const (
	// FailOpen admits requests while the store is down, throttled only
	// by the instance-local fallback guard.
	FailOpen FailurePolicy = iota
	// FailClosed rejects requests while the store is down.
	FailClosed
)

// Request carries the client identity attributes extracted from one
// inbound request. Which attribute keys a given rule is decided by that
// rule's scope.
type Request struct {
	IP        string
	APIKey    string
	Route     string
	RequestID string
}

// Config holds the service's deployment knobs.
type Config struct {
	Policy FailurePolicy

	// StoreTimeout bounds every store round trip. A request must never
	// hang on a slow store; it times out and falls into Policy.
	StoreTimeout time.Duration

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Service is the admission control entry point shared by all transports.
type Service struct {
	rules      *rule.Registry
	strategies map[rule.Algorithm]limiter.Strategy
	policy     FailurePolicy
	timeout    time.Duration
	fallback   *fallbackGuard
}

func New(reg *rule.Registry, st store.Store, cfg Config) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		rules:      reg,
		strategies: limiter.Strategies(st, now),
		policy:     cfg.Policy,
		timeout:    cfg.StoreTimeout,
		fallback:   newFallbackGuard(now),
	}
}

// Evaluate resolves the rules for the request's route and returns the
// most restrictive decision across them: admitted only when every rule
// admits, remaining quota is the minimum, retry hint the maximum. With
// no matching rule the request is admitted (Decision.Limit is zero).
//
// A non-nil error is returned only when the store is unreachable and the
// policy is fail-closed, or when a rule's state is corrupt.
func (s *Service) Evaluate(ctx context.Context, req Request) (*limiter.Decision, error) {
	rules := s.rules.Resolve(req.Route)
	if len(rules) == 0 {
		return &limiter.Decision{Allowed: true}, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	agg := &limiter.Decision{Allowed: true, Remaining: math.MaxInt}
	for _, r := range rules {
		strat, ok := s.strategies[r.Algorithm]
		if !ok {
			// unreachable for rules that passed validation
			return nil, fmt.Errorf("%w: %q", rule.ErrUnknownAlgorithm, r.Algorithm)
		}

		dec, err := strat.Run(ctx, clientKey(r, req), r)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return s.storeFailure(req, r, err)
			}
			return nil, err
		}

		log.Logger().Debug("rate limit evaluated",
			zap.String("request_id", req.RequestID),
			zap.String("rule", r.ID),
			zap.Bool("allowed", dec.Allowed),
			zap.Int("remaining", dec.Remaining))

		if !dec.Allowed {
			agg.Allowed = false
			if dec.RetryAfter > agg.RetryAfter {
				agg.RetryAfter = dec.RetryAfter
			}
		}
		if dec.Remaining <= agg.Remaining {
			agg.Remaining = dec.Remaining
			agg.Limit = dec.Limit
			agg.Window = dec.Window
		}
	}
	return agg, nil
}

// clientKey derives the storage key a rule counts under. The identity
// attribute is picked by the rule's scope; clients that present none of
// them share a single "anonymous" bucket.
func clientKey(r rule.Rule, req Request) string {
	var id string
	switch r.Scope {
	case rule.ScopeAPIKey:
		id = req.APIKey
	case rule.ScopeRoute:
		id = req.Route
	default:
		id = req.IP
	}
	if id == "" {
		id = "anonymous"
	}
	return "ratelimit:" + r.ID + ":" + string(r.Scope) + ":" + id
}

func (s *Service) storeFailure(req Request, r rule.Rule, err error) (*limiter.Decision, error) {
	if s.policy == FailClosed {
		log.Logger().Error("store unavailable, failing closed",
			zap.String("request_id", req.RequestID),
			zap.String("rule", r.ID),
			zap.Error(err))
		return nil, err
	}

	log.Logger().Warn("store unavailable, failing open",
		zap.String("request_id", req.RequestID),
		zap.String("rule", r.ID),
		zap.Error(err))

	// fail-open is not unlimited: a local bucket mirroring the rule
	// still applies, scoped to this instance only
	if !s.fallback.allow(clientKey(r, req), r) {
		return &limiter.Decision{
			Allowed:    false,
			RetryAfter: time.Second,
			Limit:      r.Limit,
			Window:     r.Window,
		}, nil
	}
	return &limiter.Decision{
		Allowed:   true,
		Remaining: r.Limit,
		Limit:     r.Limit,
		Window:    r.Window,
	}, nil
}
