package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Extractor represents the way we pull a client identity attribute out
// of an HTTP request: a header value, the peer address, anything that is
// available without side effects (an extractor must never read the
// request body).
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type headerExtractor struct {
	headers []string
}

// NewHeaderExtractor builds an extractor that joins one or more header
// values into a single identity. Use headers that are guaranteed to be
// unique per client, such as an API key header.
func NewHeaderExtractor(headers ...string) Extractor {
	return &headerExtractor{headers: headers}
}

func (h *headerExtractor) Extract(r *http.Request) (string, error) {
	values := make([]string, 0, len(h.headers))
	for _, key := range h.headers {
		value := strings.TrimSpace(r.Header.Get(key))
		if value == "" {
			return "", fmt.Errorf("the header %v must have a value set", key)
		}
		values = append(values, value)
	}
	return strings.Join(values, "-"), nil
}

type ipExtractor struct {
	trustForwarded bool
}

// NewIPExtractor builds an extractor for the client IP. When
// trustForwarded is set, the first hop of X-Forwarded-For wins (only
// enable this behind a proxy that sanitizes the header); otherwise the
// peer address from RemoteAddr is used.
func NewIPExtractor(trustForwarded bool) Extractor {
	return &ipExtractor{trustForwarded: trustForwarded}
}

func (e *ipExtractor) Extract(r *http.Request) (string, error) {
	if e.trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first := strings.TrimSpace(strings.Split(xff, ",")[0])
			if first != "" {
				return first, nil
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host, nil
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr, nil
	}
	return "", fmt.Errorf("cannot determine client address")
}
