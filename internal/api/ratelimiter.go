package api

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/aode/aode/internal/config"
)

// rateLimiter decides per request whether it may proceed.
type rateLimiter interface {
	Allow(r *http.Request) bool
}

// routeLimiter keeps reloads in their own bucket. A reload rebuilds the
// registry, stats the credentials file and re-reads the catalog, so it is
// budgeted per minute while reads share a per-second bucket. A nil bucket
// means that class of request is not limited.
type routeLimiter struct {
	reads   *rate.Limiter
	reloads *rate.Limiter
}

// newRouteLimiter returns nil when neither bucket is enabled.
func newRouteLimiter(readsPerSecond float64, readBurst, reloadsPerMinute int) rateLimiter {
	l := &routeLimiter{}
	if readsPerSecond > 0 && readBurst > 0 {
		l.reads = rate.NewLimiter(rate.Limit(readsPerSecond), readBurst)
	}
	if reloadsPerMinute > 0 {
		l.reloads = config.PerMinute(reloadsPerMinute)
	}
	if l.reads == nil && l.reloads == nil {
		return nil
	}
	return l
}

func (l *routeLimiter) Allow(r *http.Request) bool {
	bucket := l.reads
	if isReload(r) {
		bucket = l.reloads
	}
	return bucket == nil || bucket.Allow()
}

func isReload(r *http.Request) bool {
	return r.Method == http.MethodPost && r.URL.Path == reloadPath
}

func rateLimitMiddleware(limiter rateLimiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if limiter.Allow(r) {
			next.ServeHTTP(w, r)
			return
		}
		details := "rate limit exceeded, please retry shortly"
		if isReload(r) {
			details = "configuration reloads are limited, previous configuration kept"
		}
		writeError(w, http.StatusTooManyRequests, "Too many requests", details)
	})
}
