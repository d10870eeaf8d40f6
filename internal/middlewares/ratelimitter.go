package middlewares

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per client, refilled at
// requestsPerMinute with a burst of the same size.
type RateLimiter struct {
	mu                sync.Mutex
	store             map[string]*limiterEntry
	requestsPerMinute int
	now               func() time.Time
}

// NewRateLimiter returns a limiter allowing requestsPerMinute calls per
// client. A non-positive rate disables limiting. now defaults to
// time.Now.
func NewRateLimiter(requestsPerMinute int, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		store:             make(map[string]*limiterEntry),
		requestsPerMinute: requestsPerMinute,
		now:               now,
	}
}

// Allow takes one token from key's bucket.
func (l *RateLimiter) Allow(key string) bool {
	if l.requestsPerMinute <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.store[key]
	if !exists {
		l.evictIdle(now)
		n := l.requestsPerMinute
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)}
		l.store[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle forgets clients idle long enough for their bucket to be full
// again.
func (l *RateLimiter) evictIdle(now time.Time) {
	if len(l.store) < 1024 {
		return
	}
	for key, e := range l.store {
		if now.Sub(e.lastAccess) > 2*time.Minute {
			delete(l.store, key)
		}
	}
}

func (l *RateLimiter) clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.store)
}

// RateLimitPerClient rejects requests beyond the limiter's rate with 429.
// Clients are keyed by source address.
func RateLimitPerClient(l *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the caller's address, preferring the first
// X-Forwarded-For hop when the relay sits behind a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
