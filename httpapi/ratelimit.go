package httpapi

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pkt.systems/pslog"
)

const clientIdleTTL = 10 * time.Minute

var errRateLimited = errors.New("rate limit exceeded")

// clientLimiter hands out one token bucket per client address.
type clientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*limitedClient
	lastSweep time.Time
}

type limitedClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = max(1, int(perSecond))
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*limitedClient),
	}
}

func (l *clientLimiter) allow(key string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	client, ok := l.clients[key]
	if !ok {
		client = &limitedClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = client
	}
	client.lastSeen = now
	if now.Sub(l.lastSweep) > clientIdleTTL {
		for k, c := range l.clients {
			if now.Sub(c.lastSeen) > clientIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	l.mu.Unlock()
	return client.limiter.AllowN(now, 1)
}

func withRateLimit(next http.Handler, limiter *clientLimiter) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !limiter.allow(ip) {
			pslog.Ctx(r.Context()).Warn("http request rate limited", "remote", ip, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
