// Package middleware adapts the rate limiter service to net/http.
package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wavebreak/ratelimit/internal/log"
	"github.com/wavebreak/ratelimit/internal/service"
)

const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerRetryAfter = "Retry-After"
	headerRequestID  = "X-Request-Id"
)

// Config defines the configuration for the admission handler.
type Config struct {
	Service *service.Service

	// IPExtractor derives the client IP. Defaults to an extractor that
	// does not trust X-Forwarded-For.
	IPExtractor Extractor

	// KeyExtractor derives the API key, when present. Optional; a
	// request without one simply has no api_key identity.
	KeyExtractor Extractor
}

type handler struct {
	next   http.Handler
	svc    *service.Service
	ip     Extractor
	apiKey Extractor
}

// NewHandler wraps an existing http.Handler, performing admission
// control before the request reaches it. Denied requests are answered
// with 429 and never reach the wrapped handler; a store outage under a
// fail-closed policy answers 503.
func NewHandler(next http.Handler, cfg *Config) http.Handler {
	ip := cfg.IPExtractor
	if ip == nil {
		ip = NewIPExtractor(false)
	}
	return &handler{
		next:   next,
		svc:    cfg.Service,
		ip:     ip,
		apiKey: cfg.KeyExtractor,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get(headerRequestID)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(headerRequestID, reqID)

	req := service.Request{
		Route:     r.URL.Path,
		RequestID: reqID,
	}
	if ip, err := h.ip.Extract(r); err == nil {
		req.IP = ip
	}
	if h.apiKey != nil {
		if key, err := h.apiKey.Extract(r); err == nil {
			req.APIKey = key
		}
	}

	dec, err := h.svc.Evaluate(r.Context(), req)
	if err != nil {
		log.Logger().Error("rate limit evaluation failed",
			zap.String("request_id", reqID), zap.Error(err))
		h.writeResponse(w, http.StatusServiceUnavailable, "rate limiter unavailable")
		return
	}

	// informational headers are attached on allow and deny alike
	if dec.Limit > 0 {
		w.Header().Set(headerLimit, strconv.Itoa(dec.Limit))
		w.Header().Set(headerRemaining, strconv.Itoa(dec.Remaining))
	}

	if !dec.Allowed {
		w.Header().Set(headerRetryAfter, strconv.Itoa(retrySeconds(dec.RetryAfter.Seconds())))
		h.writeResponse(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	h.next.ServeHTTP(w, r)
}

func (h *handler) writeResponse(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)
	if _, err := fmt.Fprintln(w, msg); err != nil {
		log.Logger().Warn("failed to write response body", zap.Error(err))
	}
}

// retrySeconds rounds a retry hint up to whole seconds for the
// Retry-After header, with a floor of one second so clients never spin.
func retrySeconds(seconds float64) int {
	s := int(math.Ceil(seconds))
	if s < 1 {
		s = 1
	}
	return s
}
