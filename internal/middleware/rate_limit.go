package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"auth-portal/internal/metrics"
	"auth-portal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimiter reports whether key has gone over limit within window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LocalLimiter is a per-process token bucket limiter, used when no shared
// cache is configured.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalLimiter creates an empty limiter.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{limiters: make(map[string]*rate.Limiter)}
}

// CheckRateLimit takes one token from key's bucket.
func (l *LocalLimiter) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		l.limiters[key] = limiter
		l.sweep(limit)
	}
	return !limiter.Allow(), nil
}

// sweep drops idle buckets; a full bucket has not been used for a window.
func (l *LocalLimiter) sweep(burst int) {
	if len(l.limiters) < 1024 {
		return
	}
	for key, limiter := range l.limiters {
		if limiter.Tokens() >= float64(burst) {
			delete(l.limiters, key)
		}
	}
}

// RateLimitMiddleware limits credential submissions per client IP. Only
// POST requests count; rendering the page is free.
func RateLimitMiddleware(limiter RateLimiter, m *metrics.Metrics, logger *zap.Logger, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limit <= 0 || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := "login:" + ClientIP(r)
			exceeded, err := limiter.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				// A broken limiter must not lock everyone out.
				logger.Error("Rate limit check failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if exceeded {
				m.IncrementRateLimited()
				logger.Warn("Rate limit exceeded", zap.String("key", key), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				http.Error(w, errors.ErrRateLimitExceeded.Message, errors.ErrRateLimitExceeded.Status)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
