// internal/httpapi/middleware.go
package httpapi

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"libraripro/internal/web"

	"golang.org/x/time/rate"
)

// recoverPanic turns a panic in a downstream handler into a 500 response.
func recoverPanic(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					w.Header().Set("Connection", "close")
					web.Error(w, r, logger, fmt.Errorf("%s", err))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// client holds a per-IP rate limiter and the time it was last seen.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter is a token bucket per remote IP. Entries idle for staleAfter are
// evicted at most once per sweepEvery.
type ipLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

const (
	sweepEvery = time.Minute
	staleAfter = 3 * time.Minute
)

func newIPLimiter(rps float64, burst int, now func() time.Time) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     now,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > sweepEvery {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > staleAfter {
				delete(l.clients, key)
			}
		}
		l.lastSweep = now
	}

	c, found := l.clients[ip]
	if !found {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// rateLimit rejects requests from an IP that exhausted its bucket with 429.
func rateLimit(l *ipLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				web.RateLimited(w, r, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
