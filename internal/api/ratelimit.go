package api

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/star/impactgo/internal/httputil"
)

// limiterIdle is how long an IP's limiter survives without requests.
const limiterIdle = 10 * time.Minute

type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP.
type ipRateLimiter struct {
	mu        sync.Mutex
	ips       map[string]*ipLimiterEntry
	r         rate.Limit
	b         int
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(r rate.Limit, b int) *ipRateLimiter {
	return &ipRateLimiter{
		ips: make(map[string]*ipLimiterEntry),
		r:   r,
		b:   b,
		now: time.Now,
	}
}

func (l *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, e := range l.ips {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(l.ips, k)
			}
		}
		l.lastSweep = now
	}

	e, exists := l.ips[ip]
	if !exists {
		e = &ipLimiterEntry{limiter: rate.NewLimiter(l.r, l.b)}
		l.ips[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}

// limit rejects requests over the per-IP budget with 429.
func (l *ipRateLimiter) limit(trustProxy bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.ClientIP(r, trustProxy)
		if !l.getLimiter(ip).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}
