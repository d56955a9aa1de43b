package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig configures a per-client token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL evicts buckets not touched for this long.
	IdleTTL time.Duration
}

// CredentialRateLimitConfig throttles the unauthenticated account endpoints
// (login, signup, password reset, activation resend) to slow down guessing.
func CredentialRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 0.2, BurstSize: 10, IdleTTL: 30 * time.Minute}
}

type tokenBucket struct {
	tokens   float64
	lastSeen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	buckets map[string]*tokenBucket
	now     func() time.Time
	sweeps  int
}

func newRateLimiter(cfg RateLimitConfig, now func() time.Time) *rateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &rateLimiter{cfg: cfg, buckets: make(map[string]*tokenBucket), now: now}
}

// allow spends a token for key and reports the wait until the next token
// when none is left.
func (l *rateLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweeps++
	if l.sweeps%1024 == 0 {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.cfg.BurstSize), lastSeen: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.lastSeen).Seconds() * l.cfg.RequestsPerSecond
	if max := float64(l.cfg.BurstSize); b.tokens > max {
		b.tokens = max
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.RequestsPerSecond <= 0 {
		return false, time.Second
	}
	wait := time.Duration((1 - b.tokens) / l.cfg.RequestsPerSecond * float64(time.Second))
	return false, wait
}

// RateLimit limits requests per client IP and route.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return rateLimitWithClock(cfg, time.Now)
}

func rateLimitWithClock(cfg RateLimitConfig, now func() time.Time) echo.MiddlewareFunc {
	limiter := newRateLimiter(cfg, now)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.RealIP() + " " + c.Path()
			ok, wait := limiter.allow(key)
			if !ok {
				secs := int(wait/time.Second) + 1
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, try again later")
			}
			return next(c)
		}
	}
}
