package auth

import (
	"net/http"
	"strconv"
	"time"

	"store-core/internal/cache"
	"store-core/internal/observability"
	"store-core/internal/respond"
)

// LoginRateLimiter caps login attempts per client IP in a fixed window kept
// in the shared cache, so every instance sees the same counts.
type LoginRateLimiter struct {
	counter cache.Counter
	maxHits int64
	window  time.Duration
	logger  *observability.Logger
}

func NewLoginRateLimiter(counter cache.Counter, maxHits int, window time.Duration, logger *observability.Logger) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &LoginRateLimiter{
		counter: counter,
		maxHits: int64(maxHits),
		window:  window,
		logger:  logger,
	}
}

// Middleware lets the request through when the counter is unavailable; the
// per-account lockout still applies.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := observability.ClientIP(r)

		hits, ttl, err := l.counter.Incr(r.Context(), "ratelimit:login:"+ip, l.window)
		if err != nil {
			l.logger.Warn("login_rate_limit_unavailable", map[string]any{"ip": ip, "error": err.Error()})
			next.ServeHTTP(w, r)
			return
		}

		if hits > l.maxHits {
			retryAfter := int(ttl.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			respond.Error(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}
