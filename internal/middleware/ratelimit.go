package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"tablegraph/internal/logging"
)

// RateLimitConfig configures a process-wide token bucket.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

const rateLimitBody = `{"data":null,"errors":[{"message":"Rate limit exceeded"}]}`

// RateLimitMiddleware rejects requests with 429 once the bucket is empty.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.RPS <= 0 || cfg.Burst <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/cfg.RPS))))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logging.FromContext(r.Context()).Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", retryAfter)
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(rateLimitBody))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
