package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jobrunner/spatialquery/internal/config"
)

// rateLimitMiddleware rejects requests beyond the configured rate with 429.
// Health probes are never limited.
func (s *Server) rateLimitMiddleware(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isHealthPath(r.URL.Path) || limiter.Allow() {
				next.ServeHTTP(w, r)
				return
			}

			retry := time.Second
			if cfg.Rate > 0 {
				retry = time.Duration(float64(time.Second) / cfg.Rate)
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int(retry.Round(time.Second)/time.Second))))
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		})
	}
}

func isHealthPath(path string) bool {
	return path == "/health" || path == "/health/live" || path == "/health/ready"
}
