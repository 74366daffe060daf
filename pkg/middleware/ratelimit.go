package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/quill/pkg/httputil"
)

// LoginRateLimitConfig bounds login attempts per client IP over a sliding
// window. Redis failures fail open: availability over strictness for a
// limiter that only slows brute force.
type LoginRateLimitConfig struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultLoginRateLimitConfig allows 10 attempts per minute per client IP
func DefaultLoginRateLimitConfig() LoginRateLimitConfig {
	return LoginRateLimitConfig{
		MaxAttempts: 10,
		Window:      time.Minute,
	}
}

// LoginRateLimiter throttles the login endpoint using a fixed-window Redis
// counter keyed by client IP
type LoginRateLimiter struct {
	client *redis.Client
	config LoginRateLimitConfig
}

// NewLoginRateLimiter creates a login rate limiter
func NewLoginRateLimiter(client *redis.Client, config LoginRateLimitConfig) *LoginRateLimiter {
	if config.MaxAttempts <= 0 {
		config = DefaultLoginRateLimitConfig()
	}
	return &LoginRateLimiter{client: client, config: config}
}

// Allow records an attempt for the client and reports whether it is within
// the window budget. The remaining budget and window expiry are returned for
// response headers.
func (l *LoginRateLimiter) Allow(ctx context.Context, clientIP string) (allowed bool, remaining int, resetAt time.Time, err error) {
	key := fmt.Sprintf("quill:ratelimit:login:%s", clientIP)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.config.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := int(incr.Val())
	remaining = l.config.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}

	ttl, err := l.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = l.config.Window
	}
	resetAt = time.Now().Add(ttl)

	return count <= l.config.MaxAttempts, remaining, resetAt, nil
}

// Middleware applies the limiter to a route. Requests over budget get 429
// with Retry-After; Redis errors let the request through.
func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := ClientIP(r)

		allowed, remaining, resetAt, err := l.Allow(r.Context(), clientIP)
		if err != nil {
			// Fail open
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.config.MaxAttempts))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteTooManyRequests(w, "too many login attempts, try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HealthCheck verifies Redis connectivity for the limiter
func (l *LoginRateLimiter) HealthCheck(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rate limiter redis unavailable: %w", err)
	}
	return nil
}

// ClientIP extracts the originating client address, preferring the first
// X-Forwarded-For hop set by the load balancer
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for i := 0; i < len(forwarded); i++ {
			if forwarded[i] == ',' {
				return forwarded[:i]
			}
		}
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
