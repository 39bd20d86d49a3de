package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultRatePerMinute = 60.0
	defaultRateBurst     = 10
)

// clientLimiter applies a token bucket per client source so a single
// caller cannot starve the mutating endpoints.
type clientLimiter struct {
	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newClientLimiter(perMinute float64, burst int) *clientLimiter {
	if perMinute <= 0 {
		perMinute = defaultRatePerMinute
	}
	if burst <= 0 {
		burst = defaultRateBurst
	}
	return &clientLimiter{
		visitors: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perMinute / 60.0),
		burst:    burst,
	}
}

func (c *clientLimiter) allow(source string) bool {
	if source == "" {
		source = "unknown"
	}
	return c.obtain(source).Allow()
}

func (c *clientLimiter) obtain(source string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	limiter, ok := c.visitors[source]
	if !ok {
		limiter = rate.NewLimiter(c.limit, c.burst)
		c.visitors[source] = limiter
	}
	return limiter
}

// clientSource resolves the calling client address, honouring
// X-Forwarded-For when a proxy fronts the listener.
func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
