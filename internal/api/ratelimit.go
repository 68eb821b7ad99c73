package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 5 * time.Minute
	limiterIdleEviction  = 10 * time.Minute
)

// rateLimiter caps how often a single IP may open a chat stream. Each
// stream holds a model session upstream, so the refill rate is kept low
// (one token per second) and the burst small. Stale entries are swept
// inline during allow() calls rather than by a background goroutine.
type rateLimiter struct {
	mu        sync.Mutex
	callers   map[string]*caller
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// caller tracks one IP's token bucket and when it was last seen.
type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a per-IP limiter. r is tokens refilled per
// second, burst the bucket size and initial allowance.
func newRateLimiter(r float64, burst int) *rateLimiter {
	return &rateLimiter{
		callers:   make(map[string]*caller),
		limit:     rate.Limit(r),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether the IP still has a token. A first-time IP gets a
// fresh bucket and consumes one token immediately.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	if now.Sub(rl.lastSweep) > limiterSweepInterval {
		for k, c := range rl.callers {
			if now.Sub(c.lastSeen) > limiterIdleEviction {
				delete(rl.callers, k)
			}
		}
		rl.lastSweep = now
	}

	c, ok := rl.callers[ip]
	if !ok {
		limiter := rate.NewLimiter(rl.limit, rl.burst)
		rl.callers[ip] = &caller{limiter: limiter, lastSeen: now}
		limiter.Allow()
		return true
	}

	c.lastSeen = now
	return c.limiter.Allow()
}

// rateLimitMiddleware rejects over-limit requests with 429 before they
// reach the mux, so an abusive client cannot even probe routes.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the limiter key for a request. Behind a trusted
// proxy it prefers X-Real-IP, then the first X-Forwarded-For entry;
// header values must parse as IPs so a forged header cannot mint
// arbitrary limiter keys. Without a trusted proxy only RemoteAddr
// is used.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}

		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
