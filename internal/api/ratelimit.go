package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

type userLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// keyedLimiter holds one token bucket per key. Idle buckets are dropped
// after ttl.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*userLimiter
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

func newKeyedLimiter(perSecond float64, burst int, ttl time.Duration) *keyedLimiter {
	if burst < 1 {
		burst = 1
	}
	return &keyedLimiter{
		limiters: make(map[string]*userLimiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	for id, l := range k.limiters {
		if now.After(l.expires) {
			delete(k.limiters, id)
		}
	}

	l, ok := k.limiters[key]
	if !ok {
		l = &userLimiter{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.limiters[key] = l
	}
	l.expires = now.Add(k.ttl)
	return l.limiter.AllowN(now, 1)
}

// rateLimit throttles per user id from the route.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(chi.URLParam(r, "userID")) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many activity submissions")
			return
		}
		next.ServeHTTP(w, r)
	})
}
